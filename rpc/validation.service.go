package rpc

import (
	"github.com/TradeNexus/bitmex-websocket/domain"
	"github.com/go-playground/validator/v10"
)

const maxDepth = 1000

type ValidationServiceConfig struct {
	AvailableSymbols []string
}

type ValidationService struct {
	config   *ValidationServiceConfig
	validate *validator.Validate
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	return &ValidationService{
		config:   config,
		validate: validator.New(),
	}
}

func (s *ValidationService) IsSupportedSymbol(symbol string) bool {
	for _, p := range s.config.AvailableSymbols {
		if p == symbol {
			return true
		}
	}
	return false
}

// ValidateSymbol rejects malformed symbols with ErrInvalidRequest and well formed but
// unserved ones with ErrStreamNotFound.
func (s *ValidationService) ValidateSymbol(symbol string) error {
	if err := s.validate.Var(symbol, "required,alphanum,max=32"); err != nil {
		return domain.Wrapf(domain.ErrCodeInvalidRequest, err, "invalid symbol %q", symbol)
	}
	if !s.IsSupportedSymbol(symbol) {
		return domain.Newf(domain.ErrCodeNotFound, "symbol %s is not served", symbol)
	}
	return nil
}

func (s *ValidationService) ValidateTable(table string) error {
	if err := s.validate.Var(table, "required,max=64,excludes=:"); err != nil {
		return domain.Wrapf(domain.ErrCodeInvalidRequest, err, "invalid table %q", table)
	}
	return nil
}

func (s *ValidationService) ValidateDepth(depth int) error {
	if err := s.validate.Var(depth, "gte=0,lte=1000"); err != nil {
		return domain.Wrapf(domain.ErrCodeInvalidRequest, err, "depth must be between 0 and %d", maxDepth)
	}
	return nil
}
