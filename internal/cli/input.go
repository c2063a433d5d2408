package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tradeledger/internal/execution"
	"github.com/roach88/tradeledger/internal/model"
)

// ExecutionsFile is the YAML input of the reconcile command.
//
//	executions:
//	  - symbol: BTC/KRW
//	    diff: 1
//	    category: major   # optional
//	    trade: buy        # optional; absent means no settled trade
type ExecutionsFile struct {
	Executions []ExecutionSpec `yaml:"executions"`
}

type ExecutionSpec struct {
	Symbol   string  `yaml:"symbol"`
	Diff     float64 `yaml:"diff"`
	Category string  `yaml:"category"`
	Trade    string  `yaml:"trade"`
}

// InstructionsFile is the YAML input of the execute command.
type InstructionsFile struct {
	Instructions []InstructionSpec `yaml:"instructions"`
}

type InstructionSpec struct {
	Module    string  `yaml:"module"`
	Key       string  `yaml:"key"`
	User      string  `yaml:"user"`
	Symbol    string  `yaml:"symbol"`
	Side      string  `yaml:"side"`
	Diff      float64 `yaml:"diff"`
	Category  string  `yaml:"category"`
	Quantity  string  `yaml:"quantity"`
	Price     string  `yaml:"price"`
	ExpiresIn string  `yaml:"expires_in"`
}

// decodeStrict parses YAML rejecting unknown fields.
func decodeStrict(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func inference(category string) model.Inference {
	if category == "" {
		return model.WithoutCategory{}
	}
	return model.WithCategory{Category: category}
}

// ToExecutions converts the file to reconciliation input.
func (f ExecutionsFile) ToExecutions() ([]model.Execution, error) {
	out := make([]model.Execution, 0, len(f.Executions))
	for i, item := range f.Executions {
		if item.Symbol == "" {
			return nil, fmt.Errorf("executions[%d]: symbol is required", i)
		}
		ex := model.Execution{
			Request: model.ExecutionRequest{
				Symbol:    item.Symbol,
				Diff:      item.Diff,
				Inference: inference(item.Category),
			},
		}
		if item.Trade != "" {
			ex.Trade = &model.TradeOutcome{Type: model.TradeType(item.Trade)}
		}
		out = append(out, ex)
	}
	return out, nil
}

// ToInstructions converts the file to executor input, resolving
// expires_in against now.
func (f InstructionsFile) ToInstructions(now time.Time) ([]execution.Instruction, error) {
	out := make([]execution.Instruction, 0, len(f.Instructions))
	for i, item := range f.Instructions {
		in, err := item.instruction(now)
		if err != nil {
			return nil, fmt.Errorf("instructions[%d]: %w", i, err)
		}
		out = append(out, in)
	}
	return out, nil
}

func (s InstructionSpec) instruction(now time.Time) (execution.Instruction, error) {
	if s.Symbol == "" || s.Side == "" {
		return execution.Instruction{}, errors.New("symbol and side are required")
	}
	quantity, err := decimal.NewFromString(s.Quantity)
	if err != nil {
		return execution.Instruction{}, fmt.Errorf("quantity: %w", err)
	}
	var price decimal.Decimal
	if s.Price != "" {
		if price, err = decimal.NewFromString(s.Price); err != nil {
			return execution.Instruction{}, fmt.Errorf("price: %w", err)
		}
	}

	validity := model.Validity{GeneratedAt: now}
	if s.ExpiresIn != "" {
		d, err := time.ParseDuration(s.ExpiresIn)
		if err != nil {
			return execution.Instruction{}, fmt.Errorf("expires_in: %w", err)
		}
		validity.ExpiresAt = now.Add(d)
	}

	module := s.Module
	if module == "" {
		module = "trade"
	}
	return execution.Instruction{
		Module:     module,
		MessageKey: s.Key,
		UserID:     s.User,
		Symbol:     s.Symbol,
		Side:       model.TradeType(s.Side),
		Diff:       s.Diff,
		Inference:  inference(s.Category),
		Quantity:   quantity,
		Price:      price,
		Validity:   validity,
	}, nil
}
