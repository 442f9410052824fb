package main

import (
	"errors"
	"time"

	"github.com/gatherly/intake/internal/platform/env"
)

type serviceConfig struct {
	Addr               string
	ShutdownTimeout    time.Duration
	MaxAttachmentBytes int64
	MaxRequestBytes    int64
	RulesPath          string
	PresignTTL         time.Duration
	UploadConcurrency  int
	AuditEnabled       bool
}

func configFromEnv() (serviceConfig, error) {
	shutdownTimeout, err := env.Duration("INTAKE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return serviceConfig{}, err
	}
	maxAttachmentBytes, err := env.Int64("INTAKE_MAX_ATTACHMENT_BYTES", 50<<20)
	if err != nil {
		return serviceConfig{}, err
	}
	maxRequestBytes, err := env.Int64("INTAKE_MAX_REQUEST_BYTES", 256<<20)
	if err != nil {
		return serviceConfig{}, err
	}
	presignTTL, err := env.Duration("INTAKE_PRESIGN_TTL", 10*time.Minute)
	if err != nil {
		return serviceConfig{}, err
	}
	uploadConcurrency, err := env.Int("INTAKE_UPLOAD_CONCURRENCY", 4)
	if err != nil {
		return serviceConfig{}, err
	}
	auditEnabled, err := env.Bool("INTAKE_AUDIT_ENABLED", true)
	if err != nil {
		return serviceConfig{}, err
	}

	cfg := serviceConfig{
		Addr:               env.String("INTAKE_HTTP_ADDR", ":8086"),
		ShutdownTimeout:    shutdownTimeout,
		MaxAttachmentBytes: maxAttachmentBytes,
		MaxRequestBytes:    maxRequestBytes,
		RulesPath:          env.String("INTAKE_RULES_PATH", ""),
		PresignTTL:         presignTTL,
		UploadConcurrency:  uploadConcurrency,
		AuditEnabled:       auditEnabled,
	}
	if err := cfg.Validate(); err != nil {
		return serviceConfig{}, err
	}
	return cfg, nil
}

func (c serviceConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("INTAKE_HTTP_ADDR is required")
	}
	if c.MaxAttachmentBytes <= 0 {
		return errors.New("INTAKE_MAX_ATTACHMENT_BYTES must be positive")
	}
	if c.MaxRequestBytes < c.MaxAttachmentBytes {
		return errors.New("INTAKE_MAX_REQUEST_BYTES must be >= INTAKE_MAX_ATTACHMENT_BYTES")
	}
	if c.PresignTTL <= 0 || c.PresignTTL > 7*24*time.Hour {
		return errors.New("INTAKE_PRESIGN_TTL must be within (0, 168h]")
	}
	if c.UploadConcurrency < 1 {
		return errors.New("INTAKE_UPLOAD_CONCURRENCY must be >= 1")
	}
	return nil
}
