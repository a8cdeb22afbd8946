package handler

import (
	"eduportal/internal/app/auth"
	"eduportal/internal/app/authz"
	"eduportal/internal/app/presence"
	"eduportal/internal/configs"
)

// AppDeps carries everything the handlers need.
type AppDeps struct {
	Config   *configs.AppConfig
	Resolver *authz.Resolver
	Auth     *auth.Service
	Broker   presence.Broker
}
