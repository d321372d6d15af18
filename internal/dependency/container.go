// Package dependency wires core sensebridge services using go.uber.org/dig.
package dependency

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/dig"

	"github.com/sensebridge/sensebridge/internal/cache"
	"github.com/sensebridge/sensebridge/internal/config"
	"github.com/sensebridge/sensebridge/internal/repository"
	"github.com/sensebridge/sensebridge/internal/tools"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	repo    *repository.Client
	service *tools.Service
	server  *mcp.Server
	janitor *cache.Janitor
}

func (c *Container) Repository() *repository.Client { return c.repo }
func (c *Container) Service() *tools.Service        { return c.service }
func (c *Container) Server() *mcp.Server            { return c.server }
func (c *Container) Janitor() *cache.Janitor        { return c.janitor }

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(newRepository); err != nil {
		return nil, err
	}
	if err := d.Provide(tools.NewService); err != nil {
		return nil, err
	}
	if err := d.Provide(tools.NewServer); err != nil {
		return nil, err
	}
	if err := d.Provide(newJanitor); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		repo *repository.Client,
		svc *tools.Service,
		srv *mcp.Server,
		janitor *cache.Janitor,
	) {
		result = &Container{
			repo:    repo,
			service: svc,
			server:  srv,
			janitor: janitor,
		}
	})
	return result, err
}

func newRepository(cfg *config.Config) (*repository.Client, error) {
	return repository.New(cfg.RepositoryOptions())
}

func newJanitor(cfg *config.Config, svc *tools.Service) (*cache.Janitor, error) {
	return cache.NewJanitor(cfg.Cache.CleanupSchedule, svc.Caches()...)
}
