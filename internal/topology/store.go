package topology

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/burst-loop/internal/engine"
	"github.com/nvandessel/burst-loop/internal/neural"
	"github.com/nvandessel/burst-loop/internal/store"
)

// Area is one cortical area row.
type Area struct {
	ID           neural.AreaID
	Name         string
	Leak         float32
	PSPUniform   bool
	MPDriven     bool
	MemoryDecay  float32
	LedgerWindow int
}

// Neuron is one neuron row. The database id becomes the load order, not the
// engine id; LoadInto maps them.
type Neuron struct {
	ID     int64
	Area   neural.AreaID
	Coord  neural.XYZ
	Params store.NeuronParams
}

// Synapse is one synapse row referencing database neuron ids.
type Synapse struct {
	Source int64
	Target int64
	Weight uint8
	PSP    uint8
	Type   neural.SynapseType
}

// Store persists a network topology in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a topology database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveArea inserts or replaces an area row.
func (s *Store) SaveArea(ctx context.Context, a Area) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO areas (id, name, leak, psp_uniform, mp_driven, memory_decay, ledger_window)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Leak, boolInt(a.PSPUniform), boolInt(a.MPDriven), a.MemoryDecay, a.LedgerWindow)
	if err != nil {
		return fmt.Errorf("failed to save area %d: %w", a.ID, err)
	}
	return nil
}

// Areas returns all area rows ordered by id.
func (s *Store) Areas(ctx context.Context) ([]Area, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, leak, psp_uniform, mp_driven, memory_decay, ledger_window
		FROM areas ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query areas: %w", err)
	}
	defer rows.Close()

	var out []Area
	for rows.Next() {
		var a Area
		var pspUniform, mpDriven int
		if err := rows.Scan(&a.ID, &a.Name, &a.Leak, &pspUniform, &mpDriven, &a.MemoryDecay, &a.LedgerWindow); err != nil {
			return nil, fmt.Errorf("failed to scan area: %w", err)
		}
		a.PSPUniform = pspUniform != 0
		a.MPDriven = mpDriven != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertNeurons writes a batch of neuron rows in one transaction.
func (s *Store) InsertNeurons(ctx context.Context, neurons []Neuron) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO neurons (id, area_id, x, y, z, threshold, threshold_limit, leak, resting,
			excitability, refractory_period, consecutive_fire_limit, snooze_period, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare neuron insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range neurons {
		p := n.Params
		if _, err := stmt.ExecContext(ctx, n.ID, n.Area, n.Coord.X, n.Coord.Y, n.Coord.Z,
			p.Threshold, p.ThresholdLimit, p.Leak, p.Resting, p.Excitability,
			p.RefractoryPeriod, p.ConsecutiveFireLimit, p.SnoozePeriod, int(p.Kind)); err != nil {
			return fmt.Errorf("failed to insert neuron %d: %w", n.ID, err)
		}
	}
	return tx.Commit()
}

// InsertSynapses writes a batch of synapse rows in one transaction.
func (s *Store) InsertSynapses(ctx context.Context, synapses []Synapse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO synapses (source, target, weight, psp, type)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare synapse insert: %w", err)
	}
	defer stmt.Close()

	for _, sy := range synapses {
		if _, err := stmt.ExecContext(ctx, sy.Source, sy.Target, sy.Weight, sy.PSP, int(sy.Type)); err != nil {
			return fmt.Errorf("failed to insert synapse %d->%d: %w", sy.Source, sy.Target, err)
		}
	}
	return tx.Commit()
}

// Counts returns the stored neuron and synapse counts.
func (s *Store) Counts(ctx context.Context) (neurons, synapses int, err error) {
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM neurons`).Scan(&neurons); err != nil {
		return 0, 0, fmt.Errorf("failed to count neurons: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM synapses`).Scan(&synapses); err != nil {
		return 0, 0, fmt.Errorf("failed to count synapses: %w", err)
	}
	return neurons, synapses, nil
}

// LoadInto populates an NPU from the stored topology: areas first (leak,
// propagation flags, ledger windows), then neurons in id order, then
// synapses with database ids remapped to engine ids.
func (s *Store) LoadInto(ctx context.Context, npu *engine.NPU) (neurons, synapses int, err error) {
	areas, err := s.Areas(ctx)
	if err != nil {
		return 0, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, area_id, x, y, z, threshold, threshold_limit, leak, resting,
			excitability, refractory_period, consecutive_fire_limit, snooze_period, kind
		FROM neurons ORDER BY id`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query neurons: %w", err)
	}
	defer rows.Close()

	idMap := make(map[int64]neural.NeuronID)
	for rows.Next() {
		var dbID int64
		var kind int
		var p store.NeuronParams
		if err := rows.Scan(&dbID, &p.Area, &p.Coord.X, &p.Coord.Y, &p.Coord.Z,
			&p.Threshold, &p.ThresholdLimit, &p.Leak, &p.Resting, &p.Excitability,
			&p.RefractoryPeriod, &p.ConsecutiveFireLimit, &p.SnoozePeriod, &kind); err != nil {
			return 0, 0, fmt.Errorf("failed to scan neuron: %w", err)
		}
		p.Kind = neural.NeuronKind(kind)
		id, err := npu.AddNeuron(p)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to add neuron %d: %w", dbID, err)
		}
		idMap[dbID] = id
		neurons++
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	srows, err := s.db.QueryContext(ctx, `
		SELECT source, target, weight, psp, type FROM synapses ORDER BY id`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query synapses: %w", err)
	}
	defer srows.Close()

	for srows.Next() {
		var src, tgt int64
		var weight, psp uint8
		var typ int
		if err := srows.Scan(&src, &tgt, &weight, &psp, &typ); err != nil {
			return 0, 0, fmt.Errorf("failed to scan synapse: %w", err)
		}
		srcID, ok := idMap[src]
		if !ok {
			return 0, 0, fmt.Errorf("synapse references unknown neuron %d", src)
		}
		tgtID, ok := idMap[tgt]
		if !ok {
			return 0, 0, fmt.Errorf("synapse references unknown neuron %d", tgt)
		}
		if _, err := npu.AddSynapse(srcID, tgtID, weight, psp, neural.SynapseType(typ)); err != nil {
			return 0, 0, fmt.Errorf("failed to add synapse %d->%d: %w", src, tgt, err)
		}
		synapses++
	}
	if err := srows.Err(); err != nil {
		return 0, 0, err
	}

	// Area settings last: leak overrides apply to loaded neurons.
	for _, a := range areas {
		if a.Leak != 0 {
			npu.SetAreaLeak(a.ID, a.Leak)
		}
		if a.PSPUniform {
			npu.SetAreaPSPUniform(a.ID, true)
		}
		if a.MPDriven {
			npu.SetAreaMPDriven(a.ID, true)
		}
		if a.MemoryDecay != 0 {
			npu.SetAreaMemoryDecay(a.ID, a.MemoryDecay)
		}
		if a.LedgerWindow > 0 {
			if err := npu.ConfigureFireLedgerWindow(a.ID, a.LedgerWindow); err != nil {
				return 0, 0, fmt.Errorf("failed to configure ledger window for area %d: %w", a.ID, err)
			}
		}
	}

	return neurons, synapses, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
