package orchestration

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Contract names a JSON Schema that a step-boundary record must satisfy
type Contract string

const (
	ContractParameters Contract = "season_parameters"
	ContractForecast   Contract = "forecast_result"
	ContractAllocation Contract = "allocation_result"
	ContractActuals    Contract = "actuals"
	ContractVariance   Contract = "variance_analysis"
	ContractReforecast Contract = "reforecast_result"
)

var allContracts = []Contract{
	ContractParameters,
	ContractForecast,
	ContractAllocation,
	ContractActuals,
	ContractVariance,
	ContractReforecast,
}

const schemaBaseURL = "https://seasonplan.local/schemas/"

// Contracts holds the compiled handoff schemas
type Contracts struct {
	schemas map[Contract]*jsonschema.Schema
}

// NewContracts compiles the embedded schemas
func NewContracts() (*Contracts, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	for _, c := range allContracts {
		f, err := schemaFS.Open("schemas/" + string(c) + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to open schema %s: %w", c, err)
		}
		err = compiler.AddResource(schemaBaseURL+string(c)+".json", f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", c, err)
		}
	}

	contracts := &Contracts{schemas: make(map[Contract]*jsonschema.Schema, len(allContracts))}
	for _, c := range allContracts {
		schema, err := compiler.Compile(schemaBaseURL + string(c) + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", c, err)
		}
		contracts.schemas[c] = schema
	}
	return contracts, nil
}

var defaultContracts = sync.OnceValues(NewContracts)

// DefaultContracts returns the process-wide compiled schemas
func DefaultContracts() (*Contracts, error) {
	return defaultContracts()
}

// Validate checks a record against its contract. A violation is returned as
// *entities.ContractError naming the receiving step and the offending field.
func (c *Contracts) Validate(step string, contract Contract, record any) error {
	schema, ok := c.schemas[contract]
	if !ok {
		return fmt.Errorf("unknown contract %s", contract)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return &entities.ContractError{Step: step, Field: string(contract), Reason: fmt.Sprintf("not encodable: %v", err)}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &entities.ContractError{Step: step, Field: string(contract), Reason: fmt.Sprintf("not decodable: %v", err)}
	}

	if err := schema.Validate(doc); err != nil {
		field, reason := string(contract), err.Error()
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			leaf := deepestCause(verr)
			if leaf.InstanceLocation != "" {
				field += leaf.InstanceLocation
			}
			reason = leaf.Message
		}
		return &entities.ContractError{Step: step, Field: field, Reason: reason}
	}
	return nil
}

func deepestCause(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return err
}
