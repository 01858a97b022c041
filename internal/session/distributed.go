package session

import (
	"context"
	"fmt"
	"time"

	"github.com/gridmind/swarmplan/internal/api"
	"github.com/gridmind/swarmplan/internal/controller"
	"github.com/gridmind/swarmplan/internal/observer"
	"github.com/gridmind/swarmplan/internal/transport"
)

// RunControllerContainer runs the controller/observer container of a
// distributed setup: it waits for the remote unit agents to register,
// executes the configured negotiations and shuts down.
func (r *Runner) RunControllerContainer(ctx context.Context, onlyDate time.Time) error {
	store, err := r.newStore()
	if err != nil {
		return err
	}

	container, err := transport.NewContainer(r.cfg.Controller.Host, r.cfg.Controller.Port, r.log)
	if err != nil {
		return err
	}
	container.Start()
	defer r.shutdownContainer(container)

	topo := controller.NewTopologyManager(r.cfg.Controller.TopologyPhi, r.cfg.Controller.TopologySeed)
	ctrl := controller.New(controller.Config{
		NAgents:            r.cfg.Controller.NAgents,
		SingleStart:        r.cfg.Controller.SingleStart,
		NegotiationTimeout: r.cfg.Controller.NegotiationTimeout,
		Resolution:         r.cfg.Controller.Resolution,
		Period:             r.cfg.Controller.Period,
	}, container.Addr()+"/controller", topo, r.log)
	obs := observer.New(r.cfg.Controller.NAgents, ctrl, store, r.log)
	ctrl.RegisterObserver(obs)
	defer obs.Stop()

	container.Register("controller", &transport.ControllerHandler{Ctrl: ctrl, Container: container})
	container.Register("observer", &transport.ObserverHandler{Obs: obs})

	if r.cfg.API.Enabled {
		statusAPI := api.NewServer(r.cfg.API.Addr, ctrl, r.log)
		statusAPI.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			statusAPI.Shutdown(shutdownCtx)
		}()
	}

	if err := ctrl.WaitReady(ctx); err != nil {
		return err
	}
	return r.runNegotiations(ctx, ctrl, onlyDate)
}

// RunAgentContainer runs unit-agent container number index of a
// distributed setup. It serves until the context is cancelled.
func (r *Runner) RunAgentContainer(ctx context.Context, index int) error {
	if index < 0 || index >= len(r.cfg.Containers) {
		return fmt.Errorf("session: container index %d out of range (%d configured)", index, len(r.cfg.Containers))
	}
	cc := r.cfg.Containers[index]
	container, err := transport.NewContainer(cc.Host, cc.Port, r.log)
	if err != nil {
		return err
	}
	container.Start()
	defer r.shutdownContainer(container)

	ctrlAddr := r.cfg.ControllerAddr() + "/controller"
	obsAddr := r.cfg.ControllerAddr() + "/observer"
	for i := 0; i < r.cfg.Controller.NAgents; i++ {
		if i%len(r.cfg.Containers) != index {
			continue
		}
		if err := r.spawnAgent(container, i, ctrlAddr, obsAddr); err != nil {
			return err
		}
	}

	<-ctx.Done()
	return nil
}
