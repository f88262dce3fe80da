// Command idforge runs the identity provisioning service: an HTTP API over
// the directory store, the mailbox subsystem and the notification relay.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/idforge/idforge/internal/config"
	"github.com/idforge/idforge/internal/directory"
	"github.com/idforge/idforge/internal/mailbox"
	"github.com/idforge/idforge/internal/notify"
	"github.com/idforge/idforge/internal/provision"
	"github.com/idforge/idforge/internal/rest"
	"github.com/idforge/idforge/internal/schema"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := directory.Open(directory.Config{
		Addresses:    cfg.Directory.Addresses,
		BaseDN:       cfg.Directory.BaseDN,
		BindDN:       cfg.Directory.BindDN,
		BindPassword: cfg.Directory.BindPassword,
		DialTimeout:  cfg.Directory.DialTimeout,
		MaxRetries:   cfg.Directory.MaxRetries,
	}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runner, err := mailbox.NewRemotingRunner(mailbox.RemotingConfig{
		Endpoint:       cfg.Mailbox.Endpoint,
		KerberosRealm:  cfg.Mailbox.KerberosRealm,
		KerberosConfig: cfg.Mailbox.KerberosConfig,
		KerberosKeytab: cfg.Mailbox.KerberosKeytab,
		Username:       cfg.Mailbox.Username,
		Password:       cfg.Mailbox.Password,
		Timeout:        cfg.Mailbox.Timeout,
	}, logger)
	if err != nil {
		return err
	}

	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host: cfg.Notify.SMTPHost,
		Port: cfg.Notify.SMTPPort,
		From: cfg.Notify.From,
	})
	if err != nil {
		return err
	}

	service := provision.NewService(
		store,
		mailbox.NewController(runner, logger),
		notify.New(sender, notify.Config{
			AdminAddresses:  cfg.Notify.AdminAddresses,
			OfficeAddresses: cfg.Notify.OfficeAddresses,
			SendTimeout:     cfg.Notify.SendTimeout,
		}, logger),
		schema.NewCache(store, logger),
		provision.Config{
			MailDomain:                cfg.Provisioning.MailDomain,
			ContainersByOffice:        cfg.Provisioning.ContainersByOffice,
			DefaultContainer:          cfg.Provisioning.DefaultContainer,
			DisabledContainer:         cfg.Provisioning.DisabledContainer,
			GlobalGroups:              cfg.Provisioning.GlobalGroups,
			OfficeGroups:              cfg.Provisioning.OfficeGroups,
			EmployeeIDMirrorAttribute: cfg.Provisioning.EmployeeIDMirrorAttribute,
			AllowNameEdits:            cfg.Provisioning.AllowNameEdits,
		},
		logger,
	)

	router := rest.NewRouter(rest.NewHandler(service, logger))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
