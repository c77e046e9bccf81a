package api

import (
    "shipbatch/internal/auth"
    "shipbatch/internal/batch"
    "shipbatch/internal/carrier"
    "shipbatch/internal/config"
    "shipbatch/internal/events"
    "shipbatch/internal/labels"
    "shipbatch/internal/model"
    "shipbatch/internal/store"
)

type Server struct {
    Store   store.Store
    Carrier carrier.Carrier
    Engine  *batch.Engine
    Labels  labels.Storage
    Broker  events.EventBroker
    Auth    *auth.Verifier
    Shipper model.ShipperContext
    Addr    string
}

// NewServer wires the full stack from configuration. Without DATABASE_URL it
// runs on the in-memory store; with CARRIER_FAKE it runs against the fake
// carrier so the whole pipeline works offline.
func NewServer() (*Server, error) {
    cfg, err := config.Load()
    if err != nil {
        return nil, err
    }

    var st store.Store
    if cfg.DatabaseURL == "" {
        st = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        st = sp
    }

    var c carrier.Carrier
    if config.UseFakeCarrier() {
        c = &carrier.Fake{}
    } else {
        c = carrier.NewClient(carrier.Config{
            BaseURL:      cfg.Carrier.BaseURL,
            ClientID:     cfg.Carrier.ClientID,
            ClientSecret: cfg.Carrier.ClientSecret,
            MaxRPS:       cfg.Carrier.MaxRPS,
        })
    }

    var broker events.EventBroker
    if cfg.RedisURL != "" {
        if rb, err := events.NewRedisBroker(cfg.RedisURL); err == nil {
            broker = rb
        } else {
            broker = events.NewBroker()
        }
    } else {
        broker = events.NewBroker()
    }

    lb := labels.NewLocal(cfg.LabelDir)
    eng := batch.NewEngine(st, c, lb, broker)
    if cfg.PreviewRows > 0 {
        eng.PreviewRows = cfg.PreviewRows
    }
    if cfg.RowRetryAttempts > 0 {
        eng.RowRetries = cfg.RowRetryAttempts
    }

    return &Server{
        Store:   st,
        Carrier: c,
        Engine:  eng,
        Labels:  lb,
        Broker:  broker,
        Auth:    auth.NewVerifierFromEnv(),
        Shipper: cfg.Shipper.Context(),
        Addr:    ":" + cfg.Port,
    }, nil
}
