package payments

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"

	"github.com/arkantrust/payment-intents/models"
)

// Provider is the boundary to the payment provider. Confirm asks it for a
// reference and then charges synchronously.
type Provider interface {
	// Reference allocates a new provider payment reference.
	Reference() string

	// Charge resolves the payment. The returned status is SUCCEEDED, FAILED,
	// or PROCESSING when the outcome will arrive later by webhook.
	Charge(ctx context.Context, intent *models.PaymentIntent) (Outcome, error)
}

// Outcome is a provider's answer to Charge.
type Outcome struct {
	Status         models.Status
	FailureCode    string
	FailureMessage string
}

// Policy selects how the Simulator resolves charges.
type Policy string

const (
	PolicySucceed Policy = "succeed"
	PolicyFail    Policy = "fail"
	PolicyPending Policy = "pending"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicySucceed, PolicyFail, PolicyPending:
		return p, nil
	}
	return "", fmt.Errorf("unknown provider simulation policy %q", s)
}

const (
	DefaultFailureCode    = "provider_error"
	DefaultFailureMessage = "Simulated provider failure"
	referencePrefix       = "pay_sim_"
)

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	Policy         Policy
	FailureCode    string
	FailureMessage string

	// NodeID distinguishes reference generators of different processes
	// sharing one provider namespace (0-1023).
	NodeID int64
}

// Simulator is a deterministic stand-in for the payment provider: every
// charge resolves inline according to a fixed policy.
type Simulator struct {
	cfg  SimulatorConfig
	node *snowflake.Node
}

// NewSimulator returns a Simulator for cfg.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if _, err := ParsePolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}
	if cfg.FailureCode == "" {
		cfg.FailureCode = DefaultFailureCode
	}
	if cfg.FailureMessage == "" {
		cfg.FailureMessage = DefaultFailureMessage
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("provider reference generator: %w", err)
	}
	return &Simulator{cfg: cfg, node: node}, nil
}

func (s *Simulator) Reference() string {
	return referencePrefix + s.node.Generate().String()
}

func (s *Simulator) Charge(_ context.Context, _ *models.PaymentIntent) (Outcome, error) {
	switch s.cfg.Policy {
	case PolicySucceed:
		return Outcome{Status: models.StatusSucceeded}, nil
	case PolicyFail:
		return Outcome{
			Status:         models.StatusFailed,
			FailureCode:    s.cfg.FailureCode,
			FailureMessage: s.cfg.FailureMessage,
		}, nil
	case PolicyPending:
		return Outcome{Status: models.StatusProcessing}, nil
	}
	return Outcome{}, fmt.Errorf("unknown provider simulation policy %q", s.cfg.Policy)
}
