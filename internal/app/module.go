package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/dropship/internal/app/api/server"
	"github.com/fatflowers/dropship/internal/app/service/catalog"
	"github.com/fatflowers/dropship/internal/app/service/checkout"
	"github.com/fatflowers/dropship/internal/app/service/gateway"
	notificationlog "github.com/fatflowers/dropship/internal/app/service/notification_log"
	"github.com/fatflowers/dropship/internal/app/service/ordersync"
	"github.com/fatflowers/dropship/internal/app/service/reconciliation"
	"github.com/fatflowers/dropship/internal/app/service/reference"
	"github.com/fatflowers/dropship/internal/app/service/statistics"
	"github.com/fatflowers/dropship/internal/platform/db"
	"github.com/fatflowers/dropship/internal/platform/events"
	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	events.Module,
	reference.Module,
	checkout.Module,
	catalog.Module,
	gateway.Module,
	ordersync.Module,
	reconciliation.Module,
	statistics.Module,
	notificationlog.Module,
	server.Module,
)
