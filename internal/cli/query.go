package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/JohnVinyard/annotate-api-sub000/internal/domain"
	"github.com/JohnVinyard/annotate-api-sub000/internal/querymongo"
	"github.com/JohnVinyard/annotate-api-sub000/internal/querysql"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

// QueryPlan is the result of the query command: one filter compiled for
// each persistent backend.
type QueryPlan struct {
	Collection string `json:"collection"`
	Filter     string `json:"filter"`
	Mongo      string `json:"mongo"`
	SQL        string `json:"sql"`
	Params     []any  `json:"params"`
}

func (p QueryPlan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "collection: %s\n", p.Collection)
	fmt.Fprintf(&b, "filter:     %s\n", p.Filter)
	fmt.Fprintf(&b, "mongo:      %s\n", p.Mongo)
	b.WriteString("sql:\n")
	b.WriteString(querysql.Describe(p.SQL, p.Params))
	return b.String()
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <collection> <filter>",
		Short: "Compile a filter expression",
		Long: `Parse a filter expression over a collection and print the MongoDB
filter document and the SQLite statement it compiles to.

Collections: users, sounds, annotations.

Example:
  annotate query users 'user_type = "human"'
  annotate query annotations 'sound_id = "s-1" AND start_seconds = 2.5'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := compileQuery(args[0], args[1])
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(plan)
		},
	}
}

func compileQuery(name, expr string) (QueryPlan, error) {
	c, ok := lookupCollection(name)
	if !ok {
		return QueryPlan{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown collection %q", name))
	}
	q, err := c.Filter.Parse(expr)
	if err != nil {
		return QueryPlan{}, WrapExitError(ExitCommandError, "invalid filter", err)
	}

	doc, err := querymongo.Compile(q, c.Mapper)
	if err != nil {
		return QueryPlan{}, WrapExitError(ExitCommandError, "compile mongo filter", err)
	}
	ext, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return QueryPlan{}, WrapExitError(ExitFailure, "render mongo filter", err)
	}

	compiler := querysql.NewSQLCompiler(c.Name, c.Mapper.IdentityName())
	sqlText, params, err := compiler.Compile(q, c.Mapper, nil, repository.DefaultPageSize, 0)
	if err != nil {
		return QueryPlan{}, WrapExitError(ExitCommandError, "compile sql", err)
	}

	return QueryPlan{
		Collection: c.Name,
		Filter:     expr,
		Mongo:      string(ext),
		SQL:        sqlText,
		Params:     params,
	}, nil
}

func lookupCollection(name string) (domain.Collection, bool) {
	for _, c := range domain.Collections() {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(c.Mapper.Class().Name(), name) {
			return c, true
		}
	}
	return domain.Collection{}, false
}
