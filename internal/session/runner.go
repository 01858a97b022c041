package session

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/gridmind/swarmplan/internal/api"
	"github.com/gridmind/swarmplan/internal/config"
	"github.com/gridmind/swarmplan/internal/controller"
	"github.com/gridmind/swarmplan/internal/monitoring"
	"github.com/gridmind/swarmplan/internal/observer"
	"github.com/gridmind/swarmplan/internal/scheduleio"
	"github.com/gridmind/swarmplan/internal/transport"
	"github.com/gridmind/swarmplan/internal/unit"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
)

// Runner assembles and drives the standalone system: the
// controller/observer container, the unit-agent containers and the
// configured sequence of negotiations.
type Runner struct {
	cfg *config.Config
	log *logrus.Logger
}

// NewRunner creates a standalone runner.
func NewRunner(cfg *config.Config, log *logrus.Logger) *Runner {
	return &Runner{cfg: cfg, log: log}
}

// Run builds the system, executes the configured negotiations in date
// order and tears everything down. If onlyDate is non-zero, only the
// negotiation starting at that date is run.
func (r *Runner) Run(ctx context.Context, onlyDate time.Time) error {
	store, err := r.newStore()
	if err != nil {
		return err
	}

	// Container for controller and observer.
	ctrlContainer, err := transport.NewContainer(r.cfg.Controller.Host, r.cfg.Controller.Port, r.log)
	if err != nil {
		return err
	}
	ctrlContainer.Start()
	defer r.shutdownContainer(ctrlContainer)

	topo := controller.NewTopologyManager(r.cfg.Controller.TopologyPhi, r.cfg.Controller.TopologySeed)
	ctrl := controller.New(controller.Config{
		NAgents:            r.cfg.Controller.NAgents,
		SingleStart:        r.cfg.Controller.SingleStart,
		NegotiationTimeout: r.cfg.Controller.NegotiationTimeout,
		Resolution:         r.cfg.Controller.Resolution,
		Period:             r.cfg.Controller.Period,
	}, ctrlContainer.Addr()+"/controller", topo, r.log)
	obs := observer.New(r.cfg.Controller.NAgents, ctrl, store, r.log)
	ctrl.RegisterObserver(obs)
	defer obs.Stop()

	ctrlAddr := ctrlContainer.Register("controller", &transport.ControllerHandler{Ctrl: ctrl, Container: ctrlContainer})
	obsAddr := ctrlContainer.Register("observer", &transport.ObserverHandler{Obs: obs})

	if r.cfg.API.Enabled {
		statusAPI := api.NewServer(r.cfg.API.Addr, ctrl, r.log)
		statusAPI.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			statusAPI.Shutdown(shutdownCtx)
		}()
	}

	// Containers for the unit agents.
	containers := make([]*transport.Container, 0, len(r.cfg.Containers))
	for _, cc := range r.cfg.Containers {
		c, err := transport.NewContainer(cc.Host, cc.Port, r.log)
		if err != nil {
			return err
		}
		c.Start()
		defer r.shutdownContainer(c)
		containers = append(containers, c)
	}

	if err := r.spawnAgents(containers, ctrlAddr, obsAddr); err != nil {
		return err
	}
	if err := ctrl.WaitReady(ctx); err != nil {
		return err
	}

	return r.runNegotiations(ctx, ctrl, onlyDate)
}

func (r *Runner) newStore() (monitoring.Store, error) {
	switch r.cfg.Observer.Store {
	case "redis":
		return monitoring.NewRedisStore(r.cfg.Observer.Redis.Addr, r.cfg.Observer.Redis.Password,
			r.cfg.Observer.Redis.DB, r.log)
	default:
		return monitoring.NewMemoryStore(), nil
	}
}

// spawnAgents creates the unit agents, distributes them round-robin
// over the containers and registers them at controller and observer.
func (r *Runner) spawnAgents(containers []*transport.Container, ctrlAddr, obsAddr string) error {
	for i := 0; i < r.cfg.Controller.NAgents; i++ {
		if err := r.spawnAgent(containers[i%len(containers)], i, ctrlAddr, obsAddr); err != nil {
			return err
		}
	}
	return nil
}

// spawnAgent creates unit agent number index inside container and
// registers it at controller and observer.
func (r *Runner) spawnAgent(container *transport.Container, index int, ctrlAddr, obsAddr string) error {
	var spec config.AgentConfig
	if index < len(r.cfg.Agents) {
		spec = r.cfg.Agents[index]
	}
	if spec.ScheduleDir == "" {
		return fmt.Errorf("session: agent %d has no schedule directory", index)
	}
	model, err := unit.NewFileModel(spec.ScheduleDir, spec.ScheduleFiles)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%d", index)
	addr := container.Addr() + "/" + name
	obsProxy, err := container.Connect(obsAddr)
	if err != nil {
		return fmt.Errorf("session: connect observer: %w", err)
	}
	agent, err := unit.NewAgent(unit.Options{
		Name:          spec.Name,
		Addr:          addr,
		Model:         model,
		Connector:     container.Connector(),
		Observer:      obsProxy,
		Unit:          unit.NewModelInterface(model),
		CheckInterval: r.cfg.Controller.CheckInboxInterval,
	}, r.log)
	if err != nil {
		return err
	}
	container.Register(name, &transport.UnitAgentHandler{Agent: agent})

	ctrlProxy, err := container.Connect(ctrlAddr)
	if err != nil {
		return fmt.Errorf("session: connect controller: %w", err)
	}
	if err := ctrlProxy.RegisterUnitAgent(addr, agent.Name()); err != nil {
		return fmt.Errorf("session: register at controller: %w", err)
	}
	if err := obsProxy.RegisterUnitAgent(addr, agent.Name()); err != nil {
		return fmt.Errorf("session: register at observer: %w", err)
	}
	return nil
}

// runNegotiations executes the configured negotiations in date order.
func (r *Runner) runNegotiations(ctx context.Context, ctrl *controller.Controller, onlyDate time.Time) error {
	negotiations := append([]config.NegotiationConfig(nil), r.cfg.Negotiations...)
	sort.Slice(negotiations, func(i, j int) bool { return negotiations[i].Date < negotiations[j].Date })

	intervals := ctrl.Intervals()
	ran := 0
	for _, neg := range negotiations {
		start, err := time.Parse(time.RFC3339, neg.Date)
		if err != nil {
			return fmt.Errorf("session: negotiation date %q: %w", neg.Date, err)
		}
		if !onlyDate.IsZero() && !start.Equal(onlyDate) {
			continue
		}
		ran++

		target, weights, err := scheduleio.ReadTarget(neg.Target, r.cfg.Controller.Resolution, intervals)
		if err != nil {
			return err
		}

		color.Cyan("Negotiation %d: %s (%s)", ran, neg.Date, neg.Target)
		spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		spin.Suffix = " negotiating..."
		spin.Start()
		err = ctrl.RunNegotiation(ctx, start, target, weights)
		spin.Stop()
		if err != nil {
			return err
		}
		r.printSolution(ctrl)
	}
	if ran == 0 {
		return fmt.Errorf("session: no negotiation configured for the requested date")
	}
	return nil
}

// printSolution renders the latest solution as a table.
func (r *Runner) printSolution(ctrl *controller.Controller) {
	solution := ctrl.LastSolution()
	if solution == nil {
		return
	}
	names := ctrl.AgentNames()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Unit", "Address", "Index", "Schedule ID"})
	agents := solution.Agents()
	sids := solution.SIDs()
	for i, addr := range agents {
		name := names[addr]
		if name == "" {
			name = addr
		}
		table.Append([]string{name, addr, fmt.Sprintf("%d", i), fmt.Sprintf("%d", sids[i])})
	}
	table.Render()
	color.Green("Performance: %g", solution.Perf())
}

func (r *Runner) shutdownContainer(c *transport.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		r.log.WithError(err).Warn("Failed to shut down container")
	}
}
