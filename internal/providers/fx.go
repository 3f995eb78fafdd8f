package providers

import (
	"github.com/smallbiznis/carebill/internal/providers/email"
	"github.com/smallbiznis/carebill/internal/providers/pdf"
	"github.com/smallbiznis/carebill/internal/providers/slack"
	"github.com/smallbiznis/carebill/internal/providers/storage"
	"github.com/smallbiznis/carebill/internal/providers/xlsx"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	xlsx.Module,
	slack.Module,
	storage.Module,
)
