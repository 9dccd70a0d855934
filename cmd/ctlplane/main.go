package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/routectl/ctlplane/internal/aggregate"
	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/bus"
	"github.com/routectl/ctlplane/internal/config"
	"github.com/routectl/ctlplane/internal/httpapi"
	"github.com/routectl/ctlplane/internal/instance"
	"github.com/routectl/ctlplane/internal/metrics"
	"github.com/routectl/ctlplane/internal/obslog"
	"github.com/routectl/ctlplane/internal/policy"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/replication"
	"github.com/routectl/ctlplane/internal/rtarget"
	"github.com/routectl/ctlplane/internal/sched"
	"github.com/routectl/ctlplane/internal/staticroute"
	"github.com/routectl/ctlplane/internal/store"
	"github.com/routectl/ctlplane/internal/xmpp"
	"github.com/routectl/ctlplane/internal/xmppsim"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "maintenance":
		runMaintenance()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: ctlplane <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         Start the control-plane service")
	fmt.Println("  migrate       Run database migrations")
	fmt.Println("  maintenance   Run partition maintenance (create new, drop old)")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger, err := obslog.New(cfg.Service.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger
}

func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting ctlplane",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.Uint32("local_asn", cfg.Service.LocalASN),
		zap.String("http_listen", cfg.Service.HTTPListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := sched.New(sched.WithMetrics(metrics.SchedulerMetrics{}))
	defer scheduler.Close()

	interner := attr.NewInterner()
	rtMgr := rtarget.New(nil)
	registry := instance.NewRegistry(interner, rtMgr, instance.WithTableMetrics(metrics.TableMetrics{}))
	engine := replication.New(registry, rtMgr, replication.WithMetrics(metrics.ReplicationMetrics{}))
	engine.RegisterMaster(prefix.FamilyL3VPNv4)
	engine.RegisterMaster(prefix.FamilyL3VPNv6)

	vrfFamilies := []prefix.Family{prefix.FamilyInet4, prefix.FamilyInet6, prefix.FamilyEVPN, prefix.FamilyERMVPN}
	registry.AddCreateListener(func(inst *instance.Instance) {
		if inst.IsMaster {
			return
		}
		for _, fam := range vrfFamilies {
			engine.RegisterVRF(inst, fam)
		}
	})

	// --- optional journal (config-delta log + peer snapshots) ---
	var pool *pgxpool.Pool
	var journal *store.Journal
	if cfg.Postgres.DSN != "" {
		p, err := store.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer p.Close()
		pool = p

		pm := store.NewPartitionManager(p, cfg.Retention.Days, cfg.Retention.Timezone, logger.Named("store.maintenance"))
		if err := pm.CreatePartitions(ctx); err != nil {
			logger.Fatal("failed to create partitions on startup", zap.Error(err))
		}

		journal = store.NewJournal(p, store.WithMetrics(metrics.StoreMetrics{}))
		logger.Info("journal enabled", zap.Int32("max_conns", cfg.Postgres.MaxConns))
	} else {
		logger.Info("journal disabled: postgres.dsn is empty")
	}

	// --- optional telemetry bus producer ---
	var producer *bus.Producer
	if len(cfg.Bus.Brokers) > 0 {
		tlsCfg, err := cfg.Bus.BuildTLSConfig()
		if err != nil {
			logger.Fatal("failed to build bus TLS config", zap.Error(err))
		}
		saslMech := cfg.Bus.BuildSASLMechanism()

		p, err := bus.NewProducer(cfg.Bus.Brokers, cfg.Bus.ClientID, cfg.Bus.Topic, tlsCfg, saslMech, logger.Named("bus"),
			bus.WithMetrics(metrics.BusMetrics{}),
		)
		if err != nil {
			logger.Fatal("failed to create bus producer", zap.Error(err))
		}
		defer p.Close()
		producer = p
		logger.Info("telemetry bus enabled", zap.Strings("brokers", cfg.Bus.Brokers), zap.String("topic", cfg.Bus.Topic))
	} else {
		logger.Info("telemetry bus disabled: bus.brokers is empty")
	}

	policies := newPolicyStore()

	// Seed statically-configured instances (an operator may also drive
	// the same mutations later through the config-delta stream).
	for name, def := range cfg.Instances {
		inst := registry.GetOrCreate(name)
		applyInstanceDefaults(logger, inst, def)
	}

	// Apply the dynamic config-delta file, if configured, once at
	// startup — each delta is enqueued on the scheduler's flat "config"
	// group so concurrent deltas are serialized the way §5 asks for
	// every other cross-cutting mutation.
	if cfg.Service.ConfigDeltaPath != "" {
		if err := loadConfigDeltas(ctx, cfg.Service.ConfigDeltaPath, scheduler, registry, policies, journal, producer, logger); err != nil {
			logger.Fatal("failed to apply config-delta file", zap.Error(err))
		}
	}

	// --- optional xmpp agent channel, driven by a fixture ---
	var channels []*xmpp.Channel
	if cfg.Service.XMPPFixturePath != "" {
		tr, err := xmppsim.LoadYAML(cfg.Service.XMPPFixturePath)
		if err != nil {
			logger.Fatal("failed to load xmpp fixture", zap.Error(err))
		}
		if desc, err := xmppsim.DescribeJSON(tr.Records()); err == nil {
			logger.Info("loaded xmpp fixture", zap.String("path", cfg.Service.XMPPFixturePath), zap.Int("records", len(tr.Records())))
			logger.Debug("xmpp fixture contents", zap.String("records", desc))
		}

		ch := xmpp.NewChannel(cfg.Service.InstanceID+"-sim", cfg.Service.LocalASN, tr, registry,
			xmpp.WithLogger(logger.Named("xmpp")),
			xmpp.WithMetrics(metrics.XMPPMetrics{}),
			xmpp.WithPolicyResolver(policies),
		)
		channels = append(channels, ch)

		registry.AddCreateListener(ch.OnInstanceCreated)
		registry.AddCreateListener(func(inst *instance.Instance) {
			inst.AddImportListener(func(rt prefix.RouteTarget, added bool) {
				ch.OnImportRTChanged(inst, rt, added)
			})
		})
		for _, inst := range registry.All() {
			inst.AddImportListener(func(rt prefix.RouteTarget, added bool) {
				ch.OnImportRTChanged(inst, rt, added)
			})
		}

		go func() {
			if err := ch.Run(); err != nil {
				logger.Warn("xmpp channel run stopped", zap.Error(err))
			}
		}()
	}

	// --- HTTP server ---
	var dbChecker httpapi.DBChecker
	if pool != nil {
		dbChecker = pool
	}
	var busStatus httpapi.BusStatus
	if producer != nil {
		busStatus = producer
	}
	httpServer := httpapi.NewServer(cfg.Service.HTTPListen, dbChecker, busStatus, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	logger.Info("ctlplane started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			logger.Warn("xmpp channel close error", zap.Error(err))
		}
	}

	cancel()
	logger.Info("ctlplane stopped")
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running migrations", zap.String("dsn", redactDSN(cfg.Postgres.DSN)))

	ctx := context.Background()
	pool, err := store.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := store.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func runMaintenance() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running partition maintenance",
		zap.Int("retention_days", cfg.Retention.Days),
		zap.String("timezone", cfg.Retention.Timezone),
	)

	ctx := context.Background()
	pool, err := store.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pm := store.NewPartitionManager(pool, cfg.Retention.Days, cfg.Retention.Timezone, logger)
	if err := pm.Run(ctx); err != nil {
		logger.Fatal("maintenance failed", zap.Error(err))
	}

	logger.Info("partition maintenance complete")
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// applyInstanceDefaults seeds an instance's RD/import/export/policy
// configuration from its statically-configured defaults.
func applyInstanceDefaults(logger *zap.Logger, inst *instance.Instance, def config.InstanceDefaults) {
	if def.RouteDistinguisher != "" {
		rd, ok := parseRD(def.RouteDistinguisher)
		if !ok {
			logger.Warn("skipping malformed route_distinguisher", zap.String("instance", inst.Name), zap.String("rd", def.RouteDistinguisher))
		} else {
			inst.SetRD(rd)
		}
	}
	for _, s := range def.ImportTargets {
		if rt, ok := parseRouteTarget(s); ok {
			inst.AddImportRT(rt)
		} else {
			logger.Warn("skipping malformed import target", zap.String("instance", inst.Name), zap.String("rt", s))
		}
	}
	for _, s := range def.ExportTargets {
		if rt, ok := parseRouteTarget(s); ok {
			inst.AddExportRT(rt)
		} else {
			logger.Warn("skipping malformed export target", zap.String("instance", inst.Name), zap.String("rt", s))
		}
	}
	inst.SetPolicies(def.Policies)
}

// parseRD parses a "ASN:VALUE" 2-octet-AS route distinguisher, the
// only encoding operator configuration uses (§2 non-goal).
func parseRD(s string) (prefix.RD, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return prefix.RD{}, false
	}
	asn, err1 := strconv.ParseUint(parts[0], 10, 16)
	val, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return prefix.RD{}, false
	}
	return prefix.NewRDFromASN2(uint16(asn), uint32(val)), true
}

// parseRouteTarget parses a "target:ASN:VALUE" extended-community
// string into a RouteTarget, the same 2-octet-AS shape
// internal/replication's decoder accepts out of a path's attributes.
func parseRouteTarget(s string) (prefix.RouteTarget, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != "target" {
		return prefix.RouteTarget{}, false
	}
	asn, err1 := strconv.ParseUint(parts[1], 10, 16)
	val, err2 := strconv.ParseUint(parts[2], 10, 32)
	if err1 != nil || err2 != nil {
		return prefix.RouteTarget{}, false
	}
	return prefix.NewRouteTargetASN2(uint16(asn), uint32(val)), true
}

// parsePrefixInet4 parses a CIDR string into a prefix.Inet4; aggregate
// and static-route entries are both IPv4-only in this core (§4.6, §4.7
// use prefix.Inet4 directly).
func parsePrefixInet4(s string) (prefix.Inet4, bool) {
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return prefix.Inet4{}, false
	}
	ones, _ := ipnet.Mask.Size()
	return prefix.NewInet4(ipnet.IP, ones), true
}

// policyStore is the name -> compiled Policy registry applyDelta fills
// from DeltaPolicy documents; internal/instance keeps only the ordered
// name vector, leaving resolution to this wiring layer to avoid a
// policy<->instance import cycle.
type policyStore struct {
	mu       sync.Mutex
	policies map[string]policy.Policy
}

func newPolicyStore() *policyStore {
	return &policyStore{policies: make(map[string]policy.Policy)}
}

func (s *policyStore) Set(p policy.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.Name] = p
}

// Resolve implements xmpp.PolicyResolver.
func (s *policyStore) Resolve(name string) (policy.Policy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[name]
	return p, ok
}

// familyKey keys the per-(instance,family) aggregator/static-route
// manager registries loadConfigDeltas builds up as deltas arrive.
type familyKey struct {
	instance string
	family   prefix.Family
}

// loadConfigDeltas decodes path's config-delta stream and applies each
// document to registry/policies/journal/producer, serialized through
// scheduler's flat "config" group (§5's "config" task group).
func loadConfigDeltas(ctx context.Context, path string, scheduler *sched.Scheduler, registry *instance.Registry, policies *policyStore, journal *store.Journal, producer *bus.Producer, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config-delta file: %w", err)
	}
	defer f.Close()

	group := scheduler.Group("config")
	aggregators := make(map[familyKey]*aggregate.Aggregator)
	statics := make(map[familyKey]*staticroute.Manager)

	return config.DecodeDeltaStream(f, func(d config.Delta) error {
		var wg sync.WaitGroup
		var applyErr error
		wg.Add(1)
		group.Enqueue("", func() {
			defer wg.Done()
			applyErr = applyDelta(d, registry, policies, aggregators, statics, logger)
			if applyErr != nil {
				return
			}
			if journal != nil {
				if err := journal.AppendDelta(ctx, d, time.Now()); err != nil {
					logger.Warn("journal append failed", zap.String("kind", string(d.Kind)), zap.String("name", d.Name), zap.Error(err))
				}
			}
			if producer != nil {
				ev := bus.DeltaEvent{Timestamp: time.Now(), Kind: string(d.Kind), Name: d.Name}
				if err := producer.PublishDeltaApplied(ctx, ev, nil); err != nil {
					logger.Warn("bus publish failed", zap.String("kind", string(d.Kind)), zap.String("name", d.Name), zap.Error(err))
				}
			}
		})
		wg.Wait()
		if applyErr != nil {
			logger.Warn("skipping config delta", zap.String("kind", string(d.Kind)), zap.String("name", d.Name), zap.Error(applyErr))
		} else {
			logger.Info("applied config delta", zap.String("kind", string(d.Kind)), zap.String("name", d.Name))
		}
		return nil
	})
}

func applyDelta(d config.Delta, registry *instance.Registry, policies *policyStore, aggregators map[familyKey]*aggregate.Aggregator, statics map[familyKey]*staticroute.Manager, logger *zap.Logger) error {
	switch d.Kind {
	case config.DeltaInstance:
		var c config.InstanceDelta
		if err := d.Unmarshal(&c); err != nil {
			return err
		}
		inst := registry.GetOrCreate(d.Name)
		applyInstanceDefaults(logger, inst, config.InstanceDefaults{
			RouteDistinguisher: c.RouteDistinguisher,
			ImportTargets:      c.ImportTargets,
			ExportTargets:      c.ExportTargets,
			Policies:           c.Policies,
		})
		return nil

	case config.DeltaPolicy:
		var c config.PolicyDelta
		if err := d.Unmarshal(&c); err != nil {
			return err
		}
		p, err := compilePolicy(d.Name, c)
		if err != nil {
			return err
		}
		policies.Set(p)
		return nil

	case config.DeltaStaticRoute:
		var c config.StaticRouteDelta
		if err := d.Unmarshal(&c); err != nil {
			return err
		}
		return applyStaticRoute(registry, statics, d.Name, c)

	case config.DeltaAggregate:
		var c config.AggregateDelta
		if err := d.Unmarshal(&c); err != nil {
			return err
		}
		return applyAggregate(registry, aggregators, d.Name, c)

	case config.DeltaImportTarget:
		var c config.RouteTargetDelta
		if err := d.Unmarshal(&c); err != nil {
			return err
		}
		inst, ok := registry.Get(c.Instance)
		if !ok {
			return fmt.Errorf("import-target delta: unknown instance %q", c.Instance)
		}
		rt, ok := parseRouteTarget(d.Name)
		if !ok {
			return fmt.Errorf("import-target delta: malformed route target %q", d.Name)
		}
		inst.AddImportRT(rt)
		return nil

	case config.DeltaExportTarget:
		var c config.RouteTargetDelta
		if err := d.Unmarshal(&c); err != nil {
			return err
		}
		inst, ok := registry.Get(c.Instance)
		if !ok {
			return fmt.Errorf("export-target delta: unknown instance %q", c.Instance)
		}
		rt, ok := parseRouteTarget(d.Name)
		if !ok {
			return fmt.Errorf("export-target delta: malformed route target %q", d.Name)
		}
		inst.AddExportRT(rt)
		return nil

	case config.DeltaDelete:
		if inst, ok := registry.Get(d.Name); ok {
			inst.MarkDeleted()
		}
		return nil

	default:
		return fmt.Errorf("unknown delta kind %q", d.Kind)
	}
}

func applyStaticRoute(registry *instance.Registry, statics map[familyKey]*staticroute.Manager, name string, c config.StaticRouteDelta) error {
	inst, ok := registry.Get(c.Instance)
	if !ok {
		return fmt.Errorf("static-route %q: unknown instance %q", name, c.Instance)
	}
	p, ok := parsePrefixInet4(c.Prefix)
	if !ok {
		return fmt.Errorf("static-route %q: malformed prefix %q", name, c.Prefix)
	}
	nh := net.ParseIP(c.Nexthop)
	if nh == nil {
		return fmt.Errorf("static-route %q: malformed nexthop %q", name, c.Nexthop)
	}
	rts := make([]prefix.RouteTarget, 0, len(c.RTList))
	for _, s := range c.RTList {
		rt, ok := parseRouteTarget(s)
		if !ok {
			return fmt.Errorf("static-route %q: malformed rt %q", name, s)
		}
		rts = append(rts, rt)
	}

	key := familyKey{instance: inst.Name, family: prefix.FamilyInet4}
	mgr, ok := statics[key]
	if !ok {
		mgr = staticroute.New(inst.Table(prefix.FamilyInet4))
		statics[key] = mgr
		inst.MarkStatic(prefix.FamilyInet4)
	}
	mgr.SetEntry(staticroute.Config{
		StaticPrefix:  p,
		NexthopIP:     nh,
		RTList:        rts,
		CommunityList: c.Community,
		LocalASN:      inst.LocalASN,
		VNIndex:       inst.VNIndex,
	})
	return nil
}

func applyAggregate(registry *instance.Registry, aggregators map[familyKey]*aggregate.Aggregator, name string, c config.AggregateDelta) error {
	inst, ok := registry.Get(c.Instance)
	if !ok {
		return fmt.Errorf("aggregate %q: unknown instance %q", name, c.Instance)
	}
	p, ok := parsePrefixInet4(c.Prefix)
	if !ok {
		return fmt.Errorf("aggregate %q: malformed prefix %q", name, c.Prefix)
	}
	nh := net.ParseIP(c.Nexthop)
	if nh == nil {
		return fmt.Errorf("aggregate %q: malformed nexthop %q", name, c.Nexthop)
	}

	key := familyKey{instance: inst.Name, family: prefix.FamilyInet4}
	agg, ok := aggregators[key]
	if !ok {
		agg = aggregate.New(inst.Table(prefix.FamilyInet4))
		aggregators[key] = agg
		inst.MarkAggregated(prefix.FamilyInet4)
	}
	agg.SetEntry(aggregate.Config{AggregatePrefix: p, NexthopIP: nh})
	return nil
}

// yamlMatch/yamlAction are the human-writable YAML shapes a policy
// delta's per-term match/action clauses decode into before being
// compiled to the enum-keyed policy.Match/policy.Action the evaluator
// consumes.
type yamlMatch struct {
	Kind       string   `yaml:"kind"`
	PrefixList []string `yaml:"prefix_list"`
	Community  string   `yaml:"community"`
	Protocol   string   `yaml:"protocol"`
}

type yamlAction struct {
	Kind          string   `yaml:"kind"`
	Value         uint32   `yaml:"value"`
	Community     string   `yaml:"community"`
	CommunityList []string `yaml:"community_list"`
	ExtCommunity  string   `yaml:"ext_community"`
}

func compilePolicy(name string, c config.PolicyDelta) (policy.Policy, error) {
	p := policy.Policy{Name: name}
	for i, td := range c.Terms {
		var yms []yamlMatch
		if err := td.Match.Decode(&yms); err != nil {
			return policy.Policy{}, fmt.Errorf("policy %q term %d: decoding match: %w", name, i, err)
		}
		var yas []yamlAction
		if err := td.Action.Decode(&yas); err != nil {
			return policy.Policy{}, fmt.Errorf("policy %q term %d: decoding action: %w", name, i, err)
		}

		term := policy.Term{}
		for _, ym := range yms {
			m, err := compileMatch(ym)
			if err != nil {
				return policy.Policy{}, fmt.Errorf("policy %q term %d: %w", name, i, err)
			}
			term.Match = append(term.Match, m)
		}
		for _, ya := range yas {
			a, err := compileAction(ya)
			if err != nil {
				return policy.Policy{}, fmt.Errorf("policy %q term %d: %w", name, i, err)
			}
			term.Actions = append(term.Actions, a)
		}
		p.Terms = append(p.Terms, term)
	}
	return p, nil
}

func compileMatch(ym yamlMatch) (policy.Match, error) {
	switch ym.Kind {
	case "prefix-list":
		list := make([]prefix.Inet4, 0, len(ym.PrefixList))
		for _, s := range ym.PrefixList {
			pfx, ok := parsePrefixInet4(s)
			if !ok {
				return policy.Match{}, fmt.Errorf("malformed prefix-list entry %q", s)
			}
			list = append(list, pfx)
		}
		return policy.Match{Kind: policy.MatchPrefixList, PrefixList: list}, nil
	case "community":
		return policy.Match{Kind: policy.MatchCommunity, Community: ym.Community}, nil
	case "protocol":
		return policy.Match{Kind: policy.MatchProtocol, Protocol: ym.Protocol}, nil
	default:
		return policy.Match{}, fmt.Errorf("unknown match kind %q", ym.Kind)
	}
}

func compileAction(ya yamlAction) (policy.Action, error) {
	switch ya.Kind {
	case "set-local-pref":
		return policy.Action{Kind: policy.ActionSetLocalPref, Value: ya.Value}, nil
	case "set-med":
		return policy.Action{Kind: policy.ActionSetMED, Value: ya.Value}, nil
	case "add-community":
		return policy.Action{Kind: policy.ActionAddCommunity, Community: ya.Community}, nil
	case "remove-community":
		return policy.Action{Kind: policy.ActionRemoveCommunity, Community: ya.Community}, nil
	case "set-community-list":
		return policy.Action{Kind: policy.ActionSetCommunityList, CommunityList: ya.CommunityList}, nil
	case "add-ext-community":
		return policy.Action{Kind: policy.ActionAddExtCommunity, ExtCommunity: ya.ExtCommunity}, nil
	case "remove-ext-community":
		return policy.Action{Kind: policy.ActionRemoveExtCommunity, ExtCommunity: ya.ExtCommunity}, nil
	case "reject":
		return policy.Action{Kind: policy.ActionReject}, nil
	case "accept":
		return policy.Action{Kind: policy.ActionAccept}, nil
	default:
		return policy.Action{}, fmt.Errorf("unknown action kind %q", ya.Kind)
	}
}
