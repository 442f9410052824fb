package ingest

import (
	"errors"
	"fmt"

	"github.com/gatherly/intake/internal/domain"
	"github.com/gatherly/intake/internal/rules"
)

// Evaluator validates submission fields against a named rule spec.
type Evaluator interface {
	Evaluate(ruleSpecName string, sub domain.Submission) (rules.Result, error)
}

// Classifier decides the media policy for an attachment.
type Classifier interface {
	Classify(att domain.Attachment) (domain.MediaPolicy, error)
}

// Router computes the storage address for a classified attachment.
type Router interface {
	Route(att domain.Attachment, policy domain.MediaPolicy) (domain.RoutingDecision, error)
}

// Pipeline runs field validation and media routing for one submission and folds
// every failure into a single outcome.
type Pipeline struct {
	rules      Evaluator
	classifier Classifier
	router     Router
}

func NewPipeline(evaluator Evaluator, classifier Classifier, router Router) (*Pipeline, error) {
	if evaluator == nil {
		return nil, errors.New("rule evaluator is required")
	}
	if classifier == nil {
		return nil, errors.New("media classifier is required")
	}
	if router == nil {
		return nil, errors.New("storage router is required")
	}
	return &Pipeline{rules: evaluator, classifier: classifier, router: router}, nil
}

// Ingest returns an error only for malformed submissions. Invalid input of a
// well-formed shape always comes back as a Rejected outcome listing every failure.
func (p *Pipeline) Ingest(sub domain.Submission, ruleSpecName string) (domain.Outcome, error) {
	if p == nil || p.rules == nil || p.classifier == nil || p.router == nil {
		return domain.Outcome{}, errors.New("ingest pipeline not initialized")
	}
	if err := sub.CheckShape(); err != nil {
		return domain.Outcome{}, err
	}

	result, err := p.rules.Evaluate(ruleSpecName, sub)
	if err != nil {
		return domain.Outcome{}, err
	}

	rejection := &domain.Rejection{
		Fields:      append([]domain.FieldFailure{}, result.Failures...),
		Oversized:   []domain.AttachmentFailure{},
		Unsupported: []domain.AttachmentFailure{},
	}
	routes := make([]domain.RoutingDecision, 0, len(sub.Attachments))
	for i, att := range sub.Attachments {
		decision, err := p.routeAttachment(att)
		if err != nil {
			if err := addAttachmentFailure(rejection, i, att, err); err != nil {
				return domain.Outcome{}, err
			}
			continue
		}
		routes = append(routes, decision)
	}

	if !rejection.Empty() {
		return domain.Outcome{Status: domain.StatusRejected, Rejected: rejection}, nil
	}
	return domain.Outcome{
		Status: domain.StatusAccepted,
		Accepted: &domain.Acceptance{
			Fields: result.Values,
			Routes: routes,
		},
	}, nil
}

func (p *Pipeline) routeAttachment(att domain.Attachment) (domain.RoutingDecision, error) {
	policy, err := p.classifier.Classify(att)
	if err != nil {
		return domain.RoutingDecision{}, err
	}
	return p.router.Route(att, policy)
}

func addAttachmentFailure(rejection *domain.Rejection, index int, att domain.Attachment, cause error) error {
	var derr *domain.Error
	if !errors.As(cause, &derr) {
		return fmt.Errorf("attachments[%d]: %w", index, cause)
	}
	failure := domain.AttachmentFailure{
		Index:       index,
		Kind:        derr.Kind,
		ContentType: att.ContentType,
		Limit:       derr.Limit,
		Allowed:     derr.Allowed,
	}
	switch derr.Kind {
	case domain.KindPayloadTooLarge:
		rejection.Oversized = append(rejection.Oversized, failure)
	case domain.KindUnsupportedMediaType:
		rejection.Unsupported = append(rejection.Unsupported, failure)
	default:
		return fmt.Errorf("attachments[%d]: %w", index, cause)
	}
	return nil
}
