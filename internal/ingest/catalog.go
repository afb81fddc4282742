// Package ingest loads dated landing-area CSV extracts into the store,
// skipping files whose exact content has already been loaded.
package ingest

import (
	"path"
	"strings"
)

// Kind distinguishes tables updated in place from tables reloaded wholesale.
type Kind int

const (
	// Transactional tables are replaced by the contents of each new file.
	Transactional Kind = iota
	// Master tables have a stable natural key and are updated in place.
	Master
)

func (k Kind) String() string {
	if k == Master {
		return "master"
	}
	return "transactional"
}

// Strategy is one way of writing a batch into a table.
type Strategy string

const (
	StrategyUpsert Strategy = "upsert"
	StrategyReload Strategy = "reload"
)

// Policy is the conflict-resolution policy of a table kind.
type Policy int

const (
	// PolicyReload deletes every row and inserts the batch.
	PolicyReload Policy = iota
	// PolicyUpsert merges by key and falls back to a reload on conflict.
	PolicyUpsert
)

// Strategies returns the strategies of p in the order they are attempted.
// A later strategy runs only when the previous one hit a store conflict.
func (p Policy) Strategies() []Strategy {
	switch p {
	case PolicyUpsert:
		return []Strategy{StrategyUpsert, StrategyReload}
	default:
		return []Strategy{StrategyReload}
	}
}

func (p Policy) String() string {
	if p == PolicyUpsert {
		return "upsert"
	}
	return "reload"
}

// Table is a landing target.
type Table struct {
	Name string
	Kind Kind
	Key  string // natural key for master tables
}

// Policy returns the conflict-resolution policy for the table's kind.
func (t Table) Policy() Policy {
	if t.Kind == Master {
		return PolicyUpsert
	}
	return PolicyReload
}

type prefixRule struct {
	prefix string
	table  Table
}

var catalog = []prefixRule{
	{"accounts", Table{Name: "accounts", Kind: Master, Key: "account_id"}},
	{"products", Table{Name: "products", Kind: Master, Key: "product_id"}},
	{"install", Table{Name: "install_base", Kind: Transactional}},
	{"opportunities", Table{Name: "opportunities", Kind: Transactional}},
	{"orders", Table{Name: "orders", Kind: Transactional}},
	{"interactions", Table{Name: "interactions", Kind: Transactional}},
	{"bids", Table{Name: "bids", Kind: Transactional}},
	{"service", Table{Name: "service_tickets", Kind: Transactional}},
	{"web", Table{Name: "web_events", Kind: Transactional}},
}

// Classify maps a landing file name to its target table using the longest
// matching filename prefix. Matching is case-sensitive.
func Classify(filename string) (Table, bool) {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	var best prefixRule
	for _, rule := range catalog {
		if strings.HasPrefix(base, rule.prefix) && len(rule.prefix) > len(best.prefix) {
			best = rule
		}
	}
	if best.prefix == "" {
		return Table{}, false
	}
	return best.table, true
}
