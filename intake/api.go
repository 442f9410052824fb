package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gatherly/intake/internal/domain"
	"github.com/gatherly/intake/internal/ingest"
	"github.com/gatherly/intake/internal/media"
	"github.com/gatherly/intake/internal/platform/auditlog"
	"github.com/gatherly/intake/internal/platform/httpserver"
	"github.com/gatherly/intake/internal/rules"
	"github.com/gatherly/intake/internal/storage/objectstore"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	attachmentsFormField = "attachments"
	multipartMemory      = 8 << 20
	uploadTimeout        = 10 * time.Minute
	cleanupTimeout       = 30 * time.Second
	auditTimeout         = 750 * time.Millisecond
)

type intakeAPI struct {
	logger            *slog.Logger
	pipeline          *ingest.Pipeline
	engine            *rules.Engine
	store             objectstore.Store
	metrics           *intakeMetrics
	audit             func(ctx context.Context, event auditlog.IntakeEvent) error
	maxRequestBytes   int64
	presignTTL        time.Duration
	uploadConcurrency int
	now               func() time.Time
}

func newIntakeAPI(
	logger *slog.Logger,
	pipeline *ingest.Pipeline,
	engine *rules.Engine,
	store objectstore.Store,
	metrics *intakeMetrics,
	cfg serviceConfig,
) *intakeAPI {
	return &intakeAPI{
		logger:            logger,
		pipeline:          pipeline,
		engine:            engine,
		store:             store,
		metrics:           metrics,
		maxRequestBytes:   cfg.MaxRequestBytes,
		presignTTL:        cfg.PresignTTL,
		uploadConcurrency: cfg.UploadConcurrency,
		now:               time.Now,
	}
}

func (api *intakeAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/rule-specs", api.handleListRuleSpecs)
	mux.HandleFunc("GET /v1/rule-specs/{rule_spec}", api.handleGetRuleSpec)
	mux.HandleFunc("POST /v1/submissions/{rule_spec}", api.handleSubmit)
}

type jsonSubmissionRequest struct {
	Fields      map[string]any      `json:"fields"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

type attachmentResponse struct {
	Index int `json:"attachment_index"`
	domain.RoutingDecision
	Stored          bool       `json:"stored"`
	UploadURL       string     `json:"upload_url,omitempty"`
	UploadExpiresAt *time.Time `json:"upload_expires_at,omitempty"`
}

type acceptedResponse struct {
	SubmissionID string               `json:"submission_id"`
	RuleSpec     string               `json:"rule_spec"`
	Status       domain.OutcomeStatus `json:"status"`
	Fields       map[string]any       `json:"fields"`
	Attachments  []attachmentResponse `json:"attachments"`
}

type rejectedResponse struct {
	SubmissionID       string                     `json:"submission_id"`
	RuleSpec           string                     `json:"rule_spec"`
	Status             domain.OutcomeStatus       `json:"status"`
	ValidationFailures []domain.FieldFailure      `json:"validation_failures"`
	Oversized          []domain.AttachmentFailure `json:"oversized_attachments"`
	Unsupported        []domain.AttachmentFailure `json:"unsupported_attachments"`
	RequestID          string                     `json:"request_id"`
}

func (api *intakeAPI) handleListRuleSpecs(w http.ResponseWriter, r *http.Request) {
	names := api.engine.Names()
	specs := make([]rules.RuleSpec, 0, len(names))
	for _, name := range names {
		spec, _ := api.engine.Spec(name)
		specs = append(specs, spec)
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"rule_specs": specs})
}

func (api *intakeAPI) handleGetRuleSpec(w http.ResponseWriter, r *http.Request) {
	spec, ok := api.engine.Spec(strings.TrimSpace(r.PathValue("rule_spec")))
	if !ok {
		httpserver.WriteError(w, r, http.StatusNotFound, "rule_spec_not_found")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, spec)
}

func (api *intakeAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ruleSpec := strings.TrimSpace(r.PathValue("rule_spec"))

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		httpserver.WriteError(w, r, http.StatusUnsupportedMediaType, "unsupported_request_content_type")
		return
	}
	switch mediaType {
	case "multipart/form-data":
		api.handleMultipartSubmission(w, r, ruleSpec)
	case "application/json":
		api.handleJSONSubmission(w, r, ruleSpec)
	default:
		httpserver.WriteError(w, r, http.StatusUnsupportedMediaType, "unsupported_request_content_type")
	}
}

// handleMultipartSubmission decides on the declared metadata first and only then
// transfers the spooled bytes of an accepted submission to object storage.
func (api *intakeAPI) handleMultipartSubmission(w http.ResponseWriter, r *http.Request, ruleSpec string) {
	r.Body = http.MaxBytesReader(w, r.Body, api.maxRequestBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpserver.WriteError(w, r, http.StatusRequestEntityTooLarge, "request_too_large")
			return
		}
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_multipart")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	submissionID := uuid.NewString()
	sub, files, err := submissionFromMultipart(r.MultipartForm)
	if err != nil {
		api.writeMalformed(w, r, ruleSpec, err)
		return
	}

	outcome, ok := api.decide(w, r, ruleSpec, sub)
	if !ok {
		return
	}
	if !outcome.IsAccepted() {
		api.recordAudit(r, submissionID, ruleSpec, outcome, nil)
		api.writeRejected(w, r, submissionID, ruleSpec, outcome.Rejected)
		return
	}

	routes := outcome.Accepted.Routes
	if err := api.storeAttachments(r.Context(), submissionID, ruleSpec, routes, files); err != nil {
		api.logger.Error("store attachments failed",
			"request_id", requestIDOf(r),
			"submission_id", submissionID,
			"rule_spec", ruleSpec,
			"error", err,
		)
		httpserver.WriteError(w, r, http.StatusBadGateway, "storage_failed")
		return
	}

	attachments := make([]attachmentResponse, 0, len(routes))
	keys := make([]string, 0, len(routes))
	for i, route := range routes {
		attachments = append(attachments, attachmentResponse{Index: i, RoutingDecision: route, Stored: true})
		keys = append(keys, route.ObjectKey)
	}
	api.recordAudit(r, submissionID, ruleSpec, outcome, keys)
	api.writeAccepted(w, submissionID, ruleSpec, outcome.Accepted, attachments)
}

// handleJSONSubmission accepts declared attachment metadata only. Accepted attachments
// receive presigned upload URLs for their routed object keys.
func (api *intakeAPI) handleJSONSubmission(w http.ResponseWriter, r *http.Request, ruleSpec string) {
	var req jsonSubmissionRequest
	if err := decodeJSON(r, &req); err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	submissionID := uuid.NewString()
	outcome, ok := api.decide(w, r, ruleSpec, domain.Submission{Fields: req.Fields, Attachments: req.Attachments})
	if !ok {
		return
	}
	if !outcome.IsAccepted() {
		api.recordAudit(r, submissionID, ruleSpec, outcome, nil)
		api.writeRejected(w, r, submissionID, ruleSpec, outcome.Rejected)
		return
	}

	routes := outcome.Accepted.Routes
	expiresAt := api.now().UTC().Add(api.presignTTL)
	attachments := make([]attachmentResponse, 0, len(routes))
	for i, route := range routes {
		url, err := api.store.PresignPut(r.Context(), route.Namespace, route.ObjectKey, api.presignTTL)
		api.metrics.observeStorage("presign", 0, err)
		if err != nil {
			api.logger.Error("presign upload failed",
				"request_id", requestIDOf(r),
				"submission_id", submissionID,
				"object_key", route.ObjectKey,
				"error", err,
			)
			httpserver.WriteError(w, r, http.StatusBadGateway, "storage_failed")
			return
		}
		attachments = append(attachments, attachmentResponse{
			Index:           i,
			RoutingDecision: route,
			UploadURL:       url,
			UploadExpiresAt: &expiresAt,
		})
	}
	api.recordAudit(r, submissionID, ruleSpec, outcome, nil)
	api.writeAccepted(w, submissionID, ruleSpec, outcome.Accepted, attachments)
}

// decide runs the pipeline and writes the response itself when no outcome exists.
func (api *intakeAPI) decide(w http.ResponseWriter, r *http.Request, ruleSpec string, sub domain.Submission) (domain.Outcome, bool) {
	start := time.Now()
	outcome, err := api.pipeline.Ingest(sub, ruleSpec)
	if err != nil {
		if domain.IsMalformed(err) {
			api.metrics.observeDecision(api.ruleSpecLabel(ruleSpec), "malformed", time.Since(start))
			api.writeMalformed(w, r, ruleSpec, err)
			return domain.Outcome{}, false
		}
		api.logger.Error("ingest failed", "request_id", requestIDOf(r), "rule_spec", ruleSpec, "error", err)
		httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error")
		return domain.Outcome{}, false
	}
	api.metrics.observeDecision(ruleSpec, string(outcome.Status), time.Since(start))

	attrs := []any{
		"request_id", requestIDOf(r),
		"rule_spec", ruleSpec,
		"status", string(outcome.Status),
		"attachments", len(sub.Attachments),
	}
	if rej := outcome.Rejected; rej != nil {
		for range rej.Oversized {
			api.metrics.observeAttachmentFailure(string(domain.KindPayloadTooLarge))
		}
		for range rej.Unsupported {
			api.metrics.observeAttachmentFailure(string(domain.KindUnsupportedMediaType))
		}
		attrs = append(attrs,
			"field_failures", len(rej.Fields),
			"oversized", len(rej.Oversized),
			"unsupported", len(rej.Unsupported),
		)
	}
	api.logger.Info("submission decided", attrs...)
	return outcome, true
}

func (api *intakeAPI) storeAttachments(
	ctx context.Context,
	submissionID string,
	ruleSpec string,
	routes []domain.RoutingDecision,
	files []*multipart.FileHeader,
) error {
	if len(routes) != len(files) {
		return fmt.Errorf("routes=%d files=%d: mismatch", len(routes), len(files))
	}

	stored := make([]bool, len(routes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(api.uploadConcurrency)
	for i := range routes {
		route, fh := routes[i], files[i]
		g.Go(func() error {
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("open attachment %d: %w", i, err)
			}
			defer func() { _ = f.Close() }()

			uploadCtx, cancel := context.WithTimeout(gctx, uploadTimeout)
			defer cancel()
			err = api.store.Put(uploadCtx, route.Namespace, route.ObjectKey, f, fh.Size, objectstore.PutOptions{
				ContentType: media.NormalizeContentType(fh.Header.Get("Content-Type")),
				Metadata: map[string]string{
					"submission-id": submissionID,
					"rule-spec":     ruleSpec,
				},
			})
			api.metrics.observeStorage("put", fh.Size, err)
			if err != nil {
				return fmt.Errorf("put %s: %w", route.ObjectKey, err)
			}
			stored[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		api.removeStored(ctx, routes, stored)
		return err
	}
	return nil
}

// removeStored deletes the objects of a partially stored submission.
func (api *intakeAPI) removeStored(ctx context.Context, routes []domain.RoutingDecision, stored []bool) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for i, ok := range stored {
		if !ok {
			continue
		}
		err := api.store.Delete(cleanupCtx, routes[i].Namespace, routes[i].ObjectKey)
		api.metrics.observeStorage("delete", 0, err)
		if err != nil {
			api.logger.Warn("remove partial upload failed", "object_key", routes[i].ObjectKey, "error", err)
		}
	}
}

func (api *intakeAPI) recordAudit(r *http.Request, submissionID, ruleSpec string, outcome domain.Outcome, objectKeys []string) {
	if api.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), auditTimeout)
	defer cancel()
	err := api.audit(ctx, auditlog.IntakeEvent{
		Time:         api.now().UTC(),
		SubmissionID: submissionID,
		RuleSpec:     ruleSpec,
		RequestID:    requestIDOf(r),
		RemoteAddr:   r.RemoteAddr,
		UserAgent:    r.UserAgent(),
		Outcome:      outcome,
		ObjectKeys:   objectKeys,
	})
	if err != nil {
		api.logger.Warn("audit write failed", "request_id", requestIDOf(r), "submission_id", submissionID, "error", err)
	}
}

func (api *intakeAPI) writeAccepted(w http.ResponseWriter, submissionID, ruleSpec string, acc *domain.Acceptance, attachments []attachmentResponse) {
	httpserver.WriteJSON(w, http.StatusCreated, acceptedResponse{
		SubmissionID: submissionID,
		RuleSpec:     ruleSpec,
		Status:       domain.StatusAccepted,
		Fields:       acc.Fields,
		Attachments:  attachments,
	})
}

func (api *intakeAPI) writeRejected(w http.ResponseWriter, r *http.Request, submissionID, ruleSpec string, rej *domain.Rejection) {
	resp := rejectedResponse{
		SubmissionID:       submissionID,
		RuleSpec:           ruleSpec,
		Status:             domain.StatusRejected,
		ValidationFailures: []domain.FieldFailure{},
		Oversized:          []domain.AttachmentFailure{},
		Unsupported:        []domain.AttachmentFailure{},
		RequestID:          requestIDOf(r),
	}
	if rej != nil {
		for _, f := range rej.Fields {
			if isSecretField(f.Field) {
				f.Value = nil
			}
			resp.ValidationFailures = append(resp.ValidationFailures, f)
		}
		resp.Oversized = append(resp.Oversized, rej.Oversized...)
		resp.Unsupported = append(resp.Unsupported, rej.Unsupported...)
	}
	httpserver.WriteJSON(w, http.StatusUnprocessableEntity, resp)
}

func (api *intakeAPI) writeMalformed(w http.ResponseWriter, r *http.Request, ruleSpec string, err error) {
	api.logger.Info("submission malformed", "request_id", requestIDOf(r), "rule_spec", ruleSpec, "error", err)
	httpserver.WriteJSON(w, http.StatusBadRequest, map[string]any{
		"error":      "malformed_submission",
		"message":    err.Error(),
		"request_id": requestIDOf(r),
	})
}

// ruleSpecLabel keeps metric cardinality bounded for unknown names taken from the path.
func (api *intakeAPI) ruleSpecLabel(name string) string {
	if _, ok := api.engine.Spec(name); ok {
		return name
	}
	return "unknown"
}

func submissionFromMultipart(form *multipart.Form) (domain.Submission, []*multipart.FileHeader, error) {
	fields := make(map[string]any, len(form.Value))
	for name, values := range form.Value {
		if len(values) != 1 {
			return domain.Submission{}, nil, domain.Malformed("field %q must have exactly one value", name)
		}
		fields[name] = values[0]
	}
	for name := range form.File {
		if name != attachmentsFormField {
			return domain.Submission{}, nil, domain.Malformed("unexpected file field %q", name)
		}
	}

	files := form.File[attachmentsFormField]
	attachments := make([]domain.Attachment, 0, len(files))
	for _, fh := range files {
		attachments = append(attachments, domain.Attachment{
			ContentType:  fh.Header.Get("Content-Type"),
			ByteLength:   fh.Size,
			OriginalName: fh.Filename,
		})
	}
	return domain.Submission{Fields: fields, Attachments: attachments}, files, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func isSecretField(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "password") || strings.Contains(name, "secret")
}

func requestIDOf(r *http.Request) string {
	id, _ := httpserver.RequestIDFromContext(r.Context())
	return id
}
