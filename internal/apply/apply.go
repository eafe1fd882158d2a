// Package apply executes a resolved changeset against a sandbox as one
// transaction. Either every operation lands or the sandbox keeps its prior
// contents; there is no partially applied state for checks to observe.
package apply

import (
	"context"
	"fmt"

	"formsentry/internal/sandbox"
	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

// Apply runs the changeset inside the sandbox. Work is staged on a clone of
// the sandbox state and swapped in only when every operation succeeds, so a
// failure rolls back by simply discarding the clone.
//
// Operation order follows the foreign-key graph: inserts and updates visit
// tables parents-first, deletes children-first. Every applied operation is
// recorded in the returned mutation log exactly once, in execution order.
func Apply(ctx context.Context, model *schema.Model, handle *sandbox.Handle, cs domain.ChangeSet) (domain.MutationLog, error) {
	for _, table := range cs.Tables() {
		if _, ok := model.Table(table); !ok {
			return nil, &domain.ApplyError{
				Table: table, Cause: domain.CauseConstraintViolation,
				Err: fmt.Errorf("unknown table"),
			}
		}
	}

	staged := handle.State().Clone()
	tx := &transaction{model: model, state: staged}

	for _, table := range model.InsertOrder() {
		ops := cs[table]
		if ops == nil {
			continue
		}
		for _, row := range ops.Insert {
			if err := tx.step(ctx, table, domain.OpInsert, row); err != nil {
				return nil, err
			}
		}
	}
	for _, table := range model.InsertOrder() {
		ops := cs[table]
		if ops == nil {
			continue
		}
		for _, row := range ops.Update {
			if err := tx.step(ctx, table, domain.OpUpdate, row); err != nil {
				return nil, err
			}
		}
	}
	for _, table := range model.DeleteOrder() {
		ops := cs[table]
		if ops == nil {
			continue
		}
		for _, row := range ops.Delete {
			if err := tx.step(ctx, table, domain.OpDelete, row); err != nil {
				return nil, err
			}
		}
	}

	handle.Swap(staged)
	return tx.log, nil
}

// transaction accumulates staged mutations; it is discarded on any failure.
type transaction struct {
	model *schema.Model
	state domain.State
	log   domain.MutationLog
}

func (tx *transaction) step(ctx context.Context, table domain.Table, op domain.Op, row domain.Row) error {
	id := rowID(row)
	if err := ctx.Err(); err != nil {
		return &domain.ApplyError{Table: table, Op: op, ID: id, Cause: domain.CauseTimeout, Err: err}
	}
	switch op {
	case domain.OpInsert:
		return tx.insert(table, id, row)
	case domain.OpUpdate:
		return tx.update(table, id, row)
	default:
		return tx.delete(table, id)
	}
}

func (tx *transaction) insert(table domain.Table, id string, row domain.Row) error {
	if id == "" {
		return &domain.ApplyError{Table: table, Op: domain.OpInsert, Cause: domain.CauseConstraintViolation,
			Err: fmt.Errorf("missing id")}
	}
	if err := tx.checkColumns(table, domain.OpInsert, id, row); err != nil {
		return err
	}
	bucket := tx.bucket(table)
	if _, exists := bucket[id]; exists {
		return &domain.ApplyError{Table: table, Op: domain.OpInsert, ID: id,
			Cause: domain.CauseConstraintViolation, Err: fmt.Errorf("duplicate primary key")}
	}
	inserted := row.Clone()
	bucket[id] = inserted
	tx.record(table, domain.OpInsert, id, nil, inserted)
	return nil
}

func (tx *transaction) update(table domain.Table, id string, row domain.Row) error {
	bucket := tx.bucket(table)
	current, exists := bucket[id]
	if !exists {
		return &domain.ApplyError{Table: table, Op: domain.OpUpdate, ID: id,
			Cause: domain.CauseMissingTarget, Err: fmt.Errorf("row does not exist")}
	}
	if err := tx.checkColumns(table, domain.OpUpdate, id, row); err != nil {
		return err
	}
	before := current.Clone()
	merged := current.Clone()
	for column, value := range row {
		merged[column] = value
	}
	bucket[id] = merged
	tx.record(table, domain.OpUpdate, id, before, merged)
	return nil
}

func (tx *transaction) delete(table domain.Table, id string) error {
	bucket := tx.bucket(table)
	current, exists := bucket[id]
	if !exists {
		return &domain.ApplyError{Table: table, Op: domain.OpDelete, ID: id,
			Cause: domain.CauseMissingTarget, Err: fmt.Errorf("row does not exist")}
	}
	delete(bucket, id)
	tx.record(table, domain.OpDelete, id, current.Clone(), nil)
	return nil
}

// checkColumns rejects unknown columns and type-incompatible values before
// they reach the staged state.
func (tx *transaction) checkColumns(table domain.Table, op domain.Op, id string, row domain.Row) error {
	def, _ := tx.model.Table(table)
	for column, value := range row {
		c, ok := def.Column(column)
		if !ok {
			return &domain.ApplyError{Table: table, Op: op, ID: id,
				Cause: domain.CauseConstraintViolation, Err: fmt.Errorf("unknown column %s", column)}
		}
		if err := schema.CheckValue(c, value); err != nil {
			return &domain.ApplyError{Table: table, Op: op, ID: id,
				Cause: domain.CauseTypeMismatch, Err: err}
		}
	}
	return nil
}

func (tx *transaction) bucket(table domain.Table) map[string]domain.Row {
	if tx.state[table] == nil {
		tx.state[table] = map[string]domain.Row{}
	}
	return tx.state[table]
}

func (tx *transaction) record(table domain.Table, op domain.Op, id string, before, after domain.Row) {
	tx.log = append(tx.log, domain.Mutation{
		Seq: len(tx.log) + 1, Table: table, Op: op, ID: id, Before: before, After: after,
	})
}

func rowID(row domain.Row) string {
	s, _ := row[domain.IDColumn].(string)
	return s
}
