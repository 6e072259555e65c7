package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aegisd/aegis/internal/audit"
	"github.com/aegisd/aegis/internal/config"
	"github.com/aegisd/aegis/internal/decision"
	"github.com/aegisd/aegis/internal/gate"
	"github.com/aegisd/aegis/internal/metrics"
	"github.com/aegisd/aegis/internal/notify"
	"github.com/aegisd/aegis/internal/policy"
	"github.com/aegisd/aegis/internal/session"
	"github.com/aegisd/aegis/internal/suspend"
)

func loadConfigAndWorkspace() (*config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return nil, "", fmt.Errorf("invalid workspace: %w", err)
	}
	return cfg, workspacePath, nil
}

// buildRegistry seeds the policy registry from the built-in catalog plus
// the configured policy file.
func buildRegistry(cfg *config.Config) (*policy.Registry, error) {
	var overrides []policy.ToolPolicy
	if file := strings.TrimSpace(cfg.Policy.File); file != "" {
		loaded, err := policy.LoadFile(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				slog.Warn("policy file not found, using built-in catalog", "file", file)
			} else {
				return nil, err
			}
		} else {
			overrides = loaded
		}
	}

	reg := policy.NewRegistry()
	if err := policy.Seed(reg, policy.DefaultCatalog(), overrides); err != nil {
		return nil, fmt.Errorf("failed to seed policy registry: %w", err)
	}
	return reg, nil
}

// gateComponents bundles everything a command needs to operate the gate.
type gateComponents struct {
	gate        *gate.Gate
	registry    *policy.Registry
	decisions   *decision.Store
	suspensions *suspend.Service
	sessions    *session.Manager
	metrics     *metrics.GateMetrics
	redis       *decision.RedisKV
}

// close releases backend connections.
func (c *gateComponents) close() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

func buildGateComponents(cfg *config.Config, workspacePath string, notifier gate.Notifier) (*gateComponents, error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	var redisKV *decision.RedisKV
	var principalStore *decision.PrincipalStore
	if cfg.Redis.Enabled {
		redisKV = decision.NewRedisKV(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		principalStore = decision.NewPrincipalStore(redisKV, time.Duration(cfg.Redis.TTLDays)*24*time.Hour)
	}

	decisions := decision.NewStore(
		principalStore,
		decision.NewDeploymentStore(cfg.Policy.Deployment),
		slog.Default(),
	)
	suspensions := suspend.NewService(workspacePath)
	suspensions.SetDefaultTTL(time.Duration(cfg.Gate.SuspensionTTLHours) * time.Hour)
	sessions := session.NewManager(workspacePath)
	gateMetrics := metrics.NewGateMetrics(workspacePath)

	g, err := gate.New(gate.Options{
		Registry:    registry,
		Decisions:   decisions,
		Suspensions: suspensions,
		Sessions:    sessions,
		Audit:       audit.NewWriter(workspacePath),
		Metrics:     gateMetrics,
		Notifier:    notifier,
		Logger:      slog.Default(),
	})
	if err != nil {
		if redisKV != nil {
			_ = redisKV.Close()
		}
		return nil, err
	}

	return &gateComponents{
		gate:        g,
		registry:    registry,
		decisions:   decisions,
		suspensions: suspensions,
		sessions:    sessions,
		metrics:     gateMetrics,
		redis:       redisKV,
	}, nil
}

func buildNotifier(cfg *config.Config) (gate.Notifier, error) {
	if !cfg.Notify.Telegram.Enabled {
		return nil, nil
	}
	return notify.NewTelegram(&cfg.Notify.Telegram)
}
