// Package screen provides the CEL-Go based post-classification screening
// engine. Screens are tenant-configured boolean expressions evaluated
// over a labeled record; they flag rows for operational review and never
// change the labels themselves.
package screen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/retail-insights/kestrel/internal/domain"
)

// Engine is the CEL-based screening engine.
type Engine struct {
	mu              sync.RWMutex
	env             *cel.Env
	compiledScreens map[string]*CompiledScreen
	maxWorkers      int
}

// CompiledScreen holds a pre-compiled CEL program.
type CompiledScreen struct {
	Config  *domain.ScreenConfig
	Program cel.Program
}

// NewEngine creates a new screening engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment exposing the labeled record
	env, err := cel.NewEnv(
		cel.Variable("partition", cel.StringType),
		cel.Variable("stock_code", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("invoice_no", cel.StringType),
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("unit_price", cel.DoubleType),
		cel.Variable("order_value", cel.DoubleType),
		// Sales labels (empty strings on return rows)
		cel.Variable("transaction_category", cel.StringType),
		cel.Variable("product_type", cel.StringType),
		cel.Variable("financial_type", cel.StringType),
		// Return labels and audit aggregates (zero values on sales rows)
		cel.Variable("return_type", cel.StringType),
		cel.Variable("return_reason", cel.StringType),
		cel.Variable("refund_status", cel.StringType),
		cel.Variable("day_net_quantity", cel.IntType),
		cel.Variable("customer_return_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:             env,
		compiledScreens: make(map[string]*CompiledScreen),
		maxWorkers:      maxWorkers,
	}, nil
}

// ValidateScreen compiles a screen without mutating loaded engine state.
func (e *Engine) ValidateScreen(cfg *domain.ScreenConfig) error {
	if cfg == nil {
		return fmt.Errorf("screen config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileScreen(cfg)
	return err
}

// LoadScreen compiles and loads a screen into the engine.
func (e *Engine) LoadScreen(cfg *domain.ScreenConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileScreen(cfg)
	if err != nil {
		return err
	}

	e.compiledScreens[cfg.ID] = compiled

	return nil
}

// LoadScreens compiles and loads multiple screens.
func (e *Engine) LoadScreens(configs []*domain.ScreenConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadScreen(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadScreens clears all existing screens and loads new ones.
// This enables hot-reloading from the database.
func (e *Engine) ReloadScreens(configs []*domain.ScreenConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newScreens := make(map[string]*CompiledScreen)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileScreen(cfg)
		if err != nil {
			return err
		}
		newScreens[cfg.ID] = compiled
	}

	e.compiledScreens = newScreens

	return nil
}

// EvaluateAll runs every loaded screen against one labeled record.
func (e *Engine) EvaluateAll(ctx context.Context, rec *domain.TransactionRecord, c *domain.Classification) []domain.ScreenResult {
	e.mu.RLock()
	screens := make([]*CompiledScreen, 0, len(e.compiledScreens))
	for _, s := range e.compiledScreens {
		screens = append(screens, s)
	}
	e.mu.RUnlock()

	if len(screens) == 0 {
		return nil
	}

	activation := activationFor(rec, c)

	results := make([]domain.ScreenResult, len(screens))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, s := range screens {
		wg.Add(1)
		go func(idx int, sc *CompiledScreen) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateScreen(sc, activation, rec)
		}(i, s)
	}

	wg.Wait()

	return results
}

// evaluateScreen evaluates a single screen and returns the result.
func (e *Engine) evaluateScreen(s *CompiledScreen, activation map[string]any, rec *domain.TransactionRecord) domain.ScreenResult {
	start := time.Now()

	result := domain.ScreenResult{
		ScreenID: s.Config.ID,
		TenantID: rec.TenantID,
		RecordID: rec.ID,
	}

	out, _, err := s.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	if matched, ok := out.(types.Bool); ok && bool(matched) {
		result.Matched = true
		result.Reason = s.Config.Reason
		result.Severity = s.Config.Severity
	}
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// activationFor flattens a labeled record into CEL activation variables.
func activationFor(rec *domain.TransactionRecord, c *domain.Classification) map[string]any {
	activation := map[string]any{
		"partition":    string(rec.Partition()),
		"stock_code":   rec.StockCode,
		"description":  rec.DescriptionClean,
		"invoice_no":   rec.InvoiceNo,
		"customer_id":  rec.CustomerID,
		"country":      rec.Country,
		"quantity":     rec.Quantity,
		"unit_price":   rec.UnitPrice,
		"order_value":  rec.OrderValue,
		// Defaults for the partition that does not apply
		"transaction_category":  "",
		"product_type":          "",
		"financial_type":        "",
		"return_type":           "",
		"return_reason":         "",
		"refund_status":         "",
		"day_net_quantity":      int64(0),
		"customer_return_count": int64(0),
	}

	if c.Sales != nil {
		activation["transaction_category"] = c.Sales.TransactionCategory
		activation["product_type"] = c.Sales.ProductType
		activation["financial_type"] = c.Sales.FinancialType
	}
	if c.Returns != nil {
		activation["return_type"] = c.Returns.ReturnType
		activation["return_reason"] = c.Returns.ReturnReason
		activation["refund_status"] = c.Returns.RefundStatus
		activation["day_net_quantity"] = c.Returns.DayNetQuantity
		activation["customer_return_count"] = int64(c.Returns.CustomerReturnCount)
	}

	return activation
}

// ScreensCount returns the number of loaded screens.
func (e *Engine) ScreensCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledScreens)
}

// GetLoadedScreens returns the currently loaded screen configurations.
func (e *Engine) GetLoadedScreens() []*domain.ScreenConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	screens := make([]*domain.ScreenConfig, 0, len(e.compiledScreens))
	for _, compiled := range e.compiledScreens {
		screens = append(screens, compiled.Config)
	}
	return screens
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledScreens = make(map[string]*CompiledScreen)
	return nil
}

func (e *Engine) compileScreen(cfg *domain.ScreenConfig) (*CompiledScreen, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile screen %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("screen %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for screen %s: %w", cfg.ID, err)
	}

	return &CompiledScreen{
		Config:  cfg,
		Program: program,
	}, nil
}
