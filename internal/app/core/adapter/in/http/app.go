// Package http 是帳本的 REST 入口 (fiber)
package http

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/usecase"
)

// 標頭名稱
const (
	HeaderIdempotencyKey   = "Idempotency-Key"
	HeaderIdempotentReplay = "Idempotent-Replayed"
)

// Config HTTP 入口設定
type Config struct {
	// RateLimitMax: 每個 IP 在 RateLimitWindow 內可送出的請求數，0 表示不限制
	RateLimitMax    int
	RateLimitWindow time.Duration
}

type handler struct {
	ledger   usecase.LedgerService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewApp 建立 fiber app 並註冊路由
func NewApp(ledger usecase.LedgerService, logger *slog.Logger, cfg Config) *fiber.App {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{ledger: ledger, validate: newValidator(), logger: logger}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				logger.Error("http: unhandled error", "path", c.Path(), "error", err)
			}
			return writeProblem(c, problem(c, status, utils.StatusMessage(status), ""))
		},
	})

	app.Use(recover.New())
	if cfg.RateLimitMax > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimitMax,
			Expiration: window,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return writeProblem(c, problem(c, fiber.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded"))
			},
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Post("/accounts", h.createAccount)
	app.Get("/accounts/:id", h.getAccount)
	app.Get("/accounts/:id/transactions", h.listEntries)
	app.Post("/accounts/:id/deposits", h.deposit)
	app.Post("/transfers", h.transfer)
	return app
}

func (h *handler) createAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if ok, err := bindAndValidate(c, h.validate, &req); !ok {
		return err
	}
	acct, err := h.ledger.CreateAccount(c.UserContext(), req.Name, req.Denomination)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(createAccountResponse{ID: acct.ID})
}

func (h *handler) getAccount(c *fiber.Ctx) error {
	acct, err := h.ledger.GetAccount(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(accountResponse{
		ID:           acct.ID,
		Name:         acct.Name,
		Denomination: acct.Denomination,
		Balance:      acct.Balance,
		InsertedAt:   acct.InsertedAt,
	})
}

func (h *handler) listEntries(c *fiber.Ctx) error {
	entries, err := h.ledger.ListEntries(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:           e.ID,
			TransferID:   e.TransferID,
			Amount:       e.Amount,
			Denomination: e.Denomination,
			Credit:       e.Credit,
			InsertedAt:   e.InsertedAt,
		})
	}
	return c.JSON(fiber.Map{"transactions": out})
}

func (h *handler) transfer(c *fiber.Ctx) error {
	var req transferRequest
	if ok, err := bindAndValidate(c, h.validate, &req); !ok {
		return err
	}
	amount, _ := toInt64(req.Amount)

	res, err := h.ledger.Transfer(c.UserContext(), domain.TransferCommand{
		DebtorAccountID:   req.DebtorAccountID,
		CreditorAccountID: req.CreditorAccountID,
		Amount:            amount,
		Denomination:      req.Denomination,
		IdempotencyKey:    c.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return writeError(c, err)
	}
	if res.Replayed {
		c.Set(HeaderIdempotentReplay, "true")
	}
	return c.Status(fiber.StatusCreated).JSON(transferResponse{
		TransferID:   res.TransferID,
		Transactions: toRefs(res.Entries()...),
	})
}

func (h *handler) deposit(c *fiber.Ctx) error {
	var req depositRequest
	if ok, err := bindAndValidate(c, h.validate, &req); !ok {
		return err
	}
	amount, _ := toInt64(req.Amount)

	res, err := h.ledger.Deposit(c.UserContext(), domain.DepositCommand{
		AccountID:      c.Params("id"),
		Amount:         amount,
		Denomination:   req.Denomination,
		IdempotencyKey: c.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return writeError(c, err)
	}
	if res.Replayed {
		c.Set(HeaderIdempotentReplay, "true")
	}
	return c.Status(fiber.StatusCreated).JSON(transferResponse{
		TransferID:   res.TransferID,
		Transactions: toRefs(res.Credit),
	})
}
