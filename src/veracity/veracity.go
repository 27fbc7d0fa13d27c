package veracity

import (
	"github.com/openrumor/veracity/src/claims"
	"github.com/openrumor/veracity/src/config"
	"github.com/openrumor/veracity/src/service"
	"github.com/sirupsen/logrus"
)

// Veracity is a claim verification node. It wires a Store, the claims Engine
// and the HTTP Service together from a single Config object.
type Veracity struct {
	Config  *config.Config
	Store   claims.Store
	Engine  *claims.Engine
	Service *service.Service

	logger *logrus.Entry
}

// NewVeracity ...
func NewVeracity(config *config.Config) *Veracity {
	return &Veracity{
		Config: config,
	}
}

func (v *Veracity) initStore() error {
	if !v.Config.Store {
		v.Store = claims.NewInmemStore()

		v.logger.Debug("created new in-mem store")
	} else {
		v.logger.WithField("path", v.Config.DatabaseDir).Debug("Attempting to load or create database")

		store, err := claims.LoadOrCreateBadgerStore(v.Config.DatabaseDir)

		if err != nil {
			return err
		}

		if store.NeedBootstrap() {
			v.logger.Debug("loaded badger store from existing database")
		} else {
			v.logger.Debug("created new badger store from fresh database")
		}

		v.Store = store
	}

	return nil
}

func (v *Veracity) initEngine() error {
	v.Engine = claims.NewEngine(
		v.Store,
		nil,
		v.Config.EngineConfig(),
		v.logger,
	)
	return nil
}

func (v *Veracity) initService() error {
	if !v.Config.NoService {
		v.Service = service.NewService(v.Config.ServiceAddr, v.Engine, v.logger)
	}
	return nil
}

// Init builds the store, the engine and the service.
func (v *Veracity) Init() error {
	v.logger = v.Config.Logger()

	if err := v.initStore(); err != nil {
		return err
	}

	if err := v.initEngine(); err != nil {
		return err
	}

	if err := v.initService(); err != nil {
		return err
	}

	return nil
}

// Run serves the HTTP API. This is a blocking call.
func (v *Veracity) Run() {
	if v.Service != nil {
		v.Service.Serve()
	}
}

// Shutdown closes the store.
func (v *Veracity) Shutdown() {
	v.logger.Debug("Shutdown")

	if v.Store != nil {
		if err := v.Store.Close(); err != nil {
			v.logger.WithError(err).Error("Closing store")
		}
	}
}
