package update

import (
	"sort"

	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/reflectutil"
	"github.com/skuid/riker/tags"
	"go.uber.org/zap"
)

const (
	// DefaultMaxBatchSize caps the number of commands in one statement
	DefaultMaxBatchSize = 1000
	// DefaultMaxBatchParameters is the postgres bind parameter limit
	DefaultMaxBatchParameters = 65535
)

// Batch is a group of commands rendered into one statement. Every command in a
// batch has the same type and table.
type Batch struct {
	commands   []*ModificationCommand
	parameters int
}

// GetCommands function
func (b *Batch) GetCommands() []*ModificationCommand {
	return b.commands
}

// GetType function
func (b *Batch) GetType() dbchange.Type {
	return b.commands[0].kind
}

// GetTableMetadata function
func (b *Batch) GetTableMetadata() *tags.TableMetadata {
	return b.commands[0].GetTableMetadata()
}

// GetEntries returns the entries of every command in the batch
func (b *Batch) GetEntries() []Entry {
	entries := make([]Entry, 0, len(b.commands))
	for _, command := range b.commands {
		entries = append(entries, command.entry)
	}
	return entries
}

// RequiresResultPropagation function
func (b *Batch) RequiresResultPropagation() bool {
	return b.commands[0].RequiresResultPropagation()
}

// RequiresKeyMatching is true when returned rows have to be matched to commands by key
func (b *Batch) RequiresKeyMatching() bool {
	return len(b.commands) > 1 && b.RequiresResultPropagation()
}

// PreparerConfig configures a Preparer
type PreparerConfig struct {
	MaxBatchSize       int
	MaxBatchParameters int
	Logger             *zap.Logger
}

/*
Preparer builds the ordered batches for a set of dirty entries.

Commands are ordered so that a principal is inserted before the rows
referencing it and deleted after them. Within one dependency level, inserts
sharing a table and column layout are merged into one statement. Store
generated values of a merged insert are matched back to their rows by key,
which is why inserts whose key the store generates are never merged. Updates
and deletes are executed one row at a time so every row gets its own affected
count.
*/
type Preparer struct {
	maxBatchSize       int
	maxBatchParameters int
	logger             *zap.Logger
}

// NewPreparer function
func NewPreparer(config PreparerConfig) *Preparer {
	preparer := &Preparer{
		maxBatchSize:       config.MaxBatchSize,
		maxBatchParameters: config.MaxBatchParameters,
		logger:             config.Logger,
	}
	if preparer.maxBatchSize < 1 {
		preparer.maxBatchSize = DefaultMaxBatchSize
	}
	if preparer.maxBatchParameters < 1 {
		preparer.maxBatchParameters = DefaultMaxBatchParameters
	}
	if preparer.logger == nil {
		preparer.logger = zap.NewNop()
	}
	return preparer
}

// Prepare returns the batches to execute, in order
func (p *Preparer) Prepare(entries []Entry) ([]*Batch, error) {
	commands := make([]*ModificationCommand, 0, len(entries))
	for _, entry := range entries {
		command, err := NewModificationCommand(entry)
		if err != nil {
			return nil, err
		}
		if command.kind == dbchange.Update && !command.HasWrites() {
			p.logger.Debug("skipping update with nothing to write",
				zap.String("table", command.GetTableMetadata().GetQualifiedTableName()),
			)
			continue
		}
		commands = append(commands, command)
	}

	levels, err := sortCommands(commands)
	if err != nil {
		return nil, err
	}

	batches := []*Batch{}
	for _, level := range levels {
		batches = append(batches, p.batchLevel(level)...)
	}

	p.logger.Debug("prepared batches",
		zap.Int("entries", len(entries)),
		zap.Int("commands", len(commands)),
		zap.Int("levels", len(levels)),
		zap.Int("batches", len(batches)),
	)
	return batches, nil
}

func (p *Preparer) batchLevel(level []*ModificationCommand) []*Batch {
	batches := []*Batch{}
	open := map[string]*Batch{}

	for _, command := range level {
		parameters := command.parameterCount()

		mergeable := command.kind == dbchange.Insert && command.HasWrites() &&
			(!command.RequiresResultPropagation() || command.HasWrittenKey())
		if !mergeable {
			batches = append(batches, &Batch{commands: []*ModificationCommand{command}, parameters: parameters})
			continue
		}

		signature := command.signature()
		batch := open[signature]
		if batch == nil || len(batch.commands) >= p.maxBatchSize || batch.parameters+parameters > p.maxBatchParameters {
			batch = &Batch{}
			open[signature] = batch
			batches = append(batches, batch)
		}
		batch.commands = append(batch.commands, command)
		batch.parameters += parameters
	}
	return batches
}

type rowKey struct {
	table *tags.TableMetadata
	key   string
}

type dependencyGraph struct {
	commands []*ModificationCommand
	edges    [][]int
	indegree []int
	seen     map[[2]int]bool
	reasons  map[[2]int]string
}

func (g *dependencyGraph) addEdge(from, to int, reason string) {
	if from == to {
		return
	}
	edge := [2]int{from, to}
	if g.seen[edge] {
		return
	}
	g.seen[edge] = true
	g.reasons[edge] = reason
	g.edges[from] = append(g.edges[from], to)
	g.indegree[to]++
}

func currentKey(entry Entry, fields []*tags.FieldMetadata) (string, bool) {
	values := make([]interface{}, len(fields))
	for i, field := range fields {
		value := entry.GetCurrentValue(field)
		if reflectutil.IsNil(value) {
			return "", false
		}
		values[i] = value
	}
	return reflectutil.KeyString(values...), true
}

func originalKey(entry Entry, fields []*tags.FieldMetadata) (string, bool) {
	values := make([]interface{}, len(fields))
	for i, field := range fields {
		value, err := entry.GetOriginalValue(field)
		if err != nil || reflectutil.IsNil(value) {
			return "", false
		}
		values[i] = value
	}
	return reflectutil.KeyString(values...), true
}

/*
sortCommands orders commands into dependency levels. Every command in a level
only depends on commands in earlier levels. Edges:

  - an inserted principal before inserted or updated rows whose foreign key matches it
  - deleted rows, and updated rows moving away, before the principal they referenced is deleted
  - the delete of a key before the insert of the same key in the same table
*/
func sortCommands(commands []*ModificationCommand) ([][]*ModificationCommand, error) {
	graph := &dependencyGraph{
		commands: commands,
		edges:    make([][]int, len(commands)),
		indegree: make([]int, len(commands)),
		seen:     map[[2]int]bool{},
		reasons:  map[[2]int]string{},
	}

	inserted := map[rowKey]int{}
	deleted := map[rowKey]int{}
	for i, command := range commands {
		table := command.GetTableMetadata()
		switch command.kind {
		case dbchange.Insert:
			if key, ok := currentKey(command.entry, table.GetPrimaryKeyFields()); ok {
				inserted[rowKey{table, key}] = i
			}
		case dbchange.Delete:
			if key, ok := originalKey(command.entry, table.GetPrimaryKeyFields()); ok {
				deleted[rowKey{table, key}] = i
			}
		}
	}

	for i, command := range commands {
		table := command.GetTableMetadata()
		for _, foreignKey := range table.GetForeignKeys() {
			if command.kind == dbchange.Insert || command.kind == dbchange.Update {
				if key, ok := currentKey(command.entry, foreignKey.Fields); ok {
					if principal, ok := inserted[rowKey{foreignKey.TableMetadata, key}]; ok {
						graph.addEdge(principal, i, foreignKey.String())
					}
				}
			}
			if command.kind == dbchange.Delete || command.kind == dbchange.Update {
				if key, ok := originalKey(command.entry, foreignKey.Fields); ok {
					if principal, ok := deleted[rowKey{foreignKey.TableMetadata, key}]; ok {
						graph.addEdge(i, principal, foreignKey.String())
					}
				}
			}
		}
		if command.kind == dbchange.Insert {
			if key, ok := currentKey(command.entry, table.GetPrimaryKeyFields()); ok {
				if previous, ok := deleted[rowKey{table, key}]; ok {
					graph.addEdge(previous, i, table.GetName()+" key reuse")
				}
			}
		}
	}

	return graph.levels()
}

func (g *dependencyGraph) levels() ([][]*ModificationCommand, error) {
	indegree := append([]int(nil), g.indegree...)
	current := []int{}
	for i := range g.commands {
		if indegree[i] == 0 {
			current = append(current, i)
		}
	}

	levels := [][]*ModificationCommand{}
	processed := 0
	for len(current) > 0 {
		level := make([]*ModificationCommand, 0, len(current))
		next := []int{}
		for _, i := range current {
			level = append(level, g.commands[i])
			for _, j := range g.edges[i] {
				indegree[j]--
				if indegree[j] == 0 {
					next = append(next, j)
				}
			}
		}
		processed += len(current)
		levels = append(levels, level)
		sort.Ints(next)
		current = next
	}

	if processed == len(g.commands) {
		return levels, nil
	}

	entries := []Entry{}
	cyclic := map[int]bool{}
	for i := range g.commands {
		if indegree[i] > 0 {
			cyclic[i] = true
			entries = append(entries, g.commands[i].entry)
		}
	}
	foreignKeys := []string{}
	reported := map[string]bool{}
	for i := range g.commands {
		for _, j := range g.edges[i] {
			reason := g.reasons[[2]int{i, j}]
			if cyclic[i] && cyclic[j] && !reported[reason] {
				reported[reason] = true
				foreignKeys = append(foreignKeys, reason)
			}
		}
	}
	return nil, NewDependencyCycleError(entries, foreignKeys)
}
