package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tradeledger/internal/ledger"
	"github.com/roach88/tradeledger/internal/reconcile"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeNotFound, "entry not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "entry not found", resp.Error.Message)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("42")
	require.NoError(t, err)
	assert.Equal(t, "42\n", buf.String())
}

type customText struct{}

func (customText) WriteText(w io.Writer) { fmt.Fprint(w, "custom rendering") }

func TestOutputFormatter_TextWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(customText{}))
	assert.Equal(t, "custom rendering", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeUsage, "bad input", map[string]string{"file": "x.yaml"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E002]: bad input")
	assert.Contains(t, buf.String(), "x.yaml")
}

func TestExitError(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", inner)

	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.True(t, errors.Is(err, inner))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(inner))
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, errorCode(fmt.Errorf("get: %w", ledger.ErrEntryNotFound)))
	assert.Equal(t, ErrCodeContract, errorCode(&reconcile.ContractError{Code: reconcile.ErrCodeDuplicateHolding, Index: -1}))
	assert.Equal(t, ErrCodeUsage, errorCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ErrCodeGeneric, errorCode(errors.New("boom")))
}
