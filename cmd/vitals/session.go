package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-health-go/pkg/authclient"
	"github.com/ovaphlow/pitchfork/service-health-go/pkg/healthapi"
)

// session is one logged-in CLI run. invalidated closes when the backend
// refuses to renew the credential.
type session struct {
	api         *healthapi.API
	registry    *prometheus.Registry
	invalidated chan struct{}
	once        sync.Once
	logger      *zap.SugaredLogger
}

func newSession(cfg *Config, logger *zap.SugaredLogger) (*session, error) {
	s := &session{
		registry:    prometheus.NewRegistry(),
		invalidated: make(chan struct{}),
		logger:      logger,
	}
	s.registry.MustRegister(collectors.NewGoCollector())
	c, err := authclient.New(authclient.Options{
		Config:       cfg.clientConfig(),
		OnInvalidate: s.onInvalidate,
		Logger:       logger.Named("authclient"),
		Registerer:   s.registry,
	})
	if err != nil {
		return nil, err
	}
	s.api = healthapi.New(c)
	return s, nil
}

func (s *session) onInvalidate(_ context.Context, cause error) {
	s.logger.Warnw("session invalidated", "cause", cause)
	s.once.Do(func() { close(s.invalidated) })
}

func (s *session) login(ctx context.Context, email, password string) (*healthapi.AuthResponse, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required (flags, vitals.yaml or VITALS_EMAIL/VITALS_PASSWORD)")
	}
	return s.api.Login(ctx, email, password)
}
