package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoStation is returned when a field has no gate mapping.
var ErrNoStation = errors.New("store: no station mapped for field")

// CommandLogEntry mirrors one row of the local SCADA command log.
type CommandLogEntry struct {
	CommandID      string     `db:"scada_command_id"`
	FieldID        string     `db:"field_id"`
	GateName       string     `db:"gate_name"`
	GateLevel      int        `db:"gate_level"`
	TargetFlowRate float64    `db:"target_flow_rate"`
	CommandTime    time.Time  `db:"command_time"`
	Status         string     `db:"status"`
	CompletedAt    *time.Time `db:"completed_at"`
}

// StationForField resolves the canal station controlling a field's branch.
func (s *DB) StationForField(ctx context.Context, fieldID string) (string, error) {
	var station string
	err := s.db.GetContext(ctx, &station, `
		SELECT station_code FROM field_gate_mapping WHERE field_id = $1`, fieldID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoStation
	}
	if err != nil {
		return "", fmt.Errorf("resolve station for %s: %w", fieldID, err)
	}
	return station, nil
}

// InsertCommandLog records an outbound gate command with status sent.
func (s *DB) InsertCommandLog(ctx context.Context, e CommandLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scada_command_log
			(scada_command_id, field_id, gate_name, gate_level,
			 target_flow_rate, command_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.CommandID, e.FieldID, e.GateName, e.GateLevel,
		e.TargetFlowRate, e.CommandTime, e.Status)
	if err != nil {
		return fmt.Errorf("insert command log %s: %w", e.CommandID, err)
	}
	return nil
}

// MarkCommandCompleted flips a logged command to completed.
func (s *DB) MarkCommandCompleted(ctx context.Context, commandID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scada_command_log
		SET status = 'completed', completed_at = $2
		WHERE scada_command_id = $1 AND status = 'sent'`, commandID, at)
	if err != nil {
		return fmt.Errorf("mark command completed %s: %w", commandID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOpenCommands returns sent-but-unconfirmed commands newer than the
// given instant, oldest first.
func (s *DB) ListOpenCommands(ctx context.Context, since time.Time) ([]CommandLogEntry, error) {
	var entries []CommandLogEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT scada_command_id, field_id, gate_name, gate_level,
		       target_flow_rate, command_time, status, completed_at
		FROM scada_command_log
		WHERE status = 'sent' AND command_time >= $1
		ORDER BY command_time ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("list open commands: %w", err)
	}
	return entries, nil
}
