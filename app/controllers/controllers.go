package controllers

import (
	"github.com/dieselnoi/academy/internal/pkg/analytics"
	"github.com/dieselnoi/academy/internal/pkg/authguard"
	"github.com/dieselnoi/academy/internal/pkg/badges"
	"github.com/dieselnoi/academy/internal/pkg/entitlements"
	"github.com/dieselnoi/academy/internal/pkg/events"
	"github.com/dieselnoi/academy/internal/pkg/payments"
	"github.com/dieselnoi/academy/internal/pkg/progress"
	"github.com/dieselnoi/academy/internal/pkg/referrals"
	"github.com/dieselnoi/academy/internal/pkg/twofactor"
	"github.com/dieselnoi/academy/internal/pkg/video"
)

// Services holds the wired application services the controllers call into.
// main assembles it once at startup.
type Services struct {
	Dispatcher   *events.Dispatcher
	LoginTracker *authguard.Tracker
	RegLimiter   *authguard.RegistrationLimiter
	TwoFactor    *twofactor.Service
	Entitlements *entitlements.Resolver
	MuxClient    *video.Client
	StripeClient *payments.StripeClient
	Payments     *payments.Service
	Referrals    *referrals.Engine
	Progress     *progress.Tracker
	Badges       *badges.Engine
	Analytics    *analytics.Service
}

var svc Services

// Setup installs the service set the Handle* functions use.
func Setup(s Services) {
	svc = s
}
