package store

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "strings"
    "time"

    "codetutor/voicedebug/internal/types"
    "github.com/google/uuid"
    "github.com/lib/pq"
    "github.com/rs/zerolog"
)

// Postgres stores session records and profiles in PostgreSQL. Event logs
// stay in memory.
type Postgres struct {
    *Store
    db  *sql.DB
    log zerolog.Logger
}

func NewPostgres(ctx context.Context, databaseURL string, log zerolog.Logger) (*Postgres, error) {
    db, err := sql.Open("postgres", databaseURL)
    if err != nil {
        return nil, fmt.Errorf("failed to connect to database: %w", err)
    }
    if err := db.PingContext(ctx); err != nil {
        db.Close()
        return nil, fmt.Errorf("failed to ping database: %w", err)
    }
    p := &Postgres{Store: New(), db: db, log: log}
    if err := p.initSchema(ctx); err != nil {
        db.Close()
        return nil, fmt.Errorf("failed to initialize schema: %w", err)
    }
    return p, nil
}

func (p *Postgres) Close() error {
    return p.db.Close()
}

// Ping reports database reachability.
func (p *Postgres) Ping(ctx context.Context) error {
    return p.db.PingContext(ctx)
}

func (p *Postgres) initSchema(ctx context.Context) error {
    schema := `
    CREATE TABLE IF NOT EXISTS debugging_sessions (
        id UUID PRIMARY KEY,
        created_by VARCHAR(255) NOT NULL,
        code_input TEXT NOT NULL,
        error_message TEXT NOT NULL DEFAULT '',
        programming_language VARCHAR(32) NOT NULL,
        explanation_provided TEXT NOT NULL,
        solution_suggested TEXT NOT NULL,
        voice_used BOOLEAN NOT NULL DEFAULT FALSE,
        session_duration INTEGER NOT NULL DEFAULT 0,
        user_satisfaction INTEGER NOT NULL DEFAULT 0,
        concepts_learned TEXT[] NOT NULL DEFAULT '{}',
        created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS user_profiles (
        user_id VARCHAR(255) PRIMARY KEY,
        preferred_language VARCHAR(32) NOT NULL,
        voice_enabled BOOLEAN NOT NULL,
        speech_rate DOUBLE PRECISION NOT NULL,
        programming_level VARCHAR(32) NOT NULL,
        total_sessions INTEGER NOT NULL DEFAULT 0,
        learning_streak INTEGER NOT NULL DEFAULT 0,
        last_session_at TIMESTAMP WITH TIME ZONE
    );

    CREATE INDEX IF NOT EXISTS idx_sessions_user_created ON debugging_sessions(created_by, created_at DESC);
    CREATE INDEX IF NOT EXISTS idx_sessions_language ON debugging_sessions(programming_language);
    `
    _, err := p.db.ExecContext(ctx, schema)
    return err
}

func (p *Postgres) CreateSession(ctx context.Context, rec types.SessionRecord) (string, error) {
    id := uuid.New().String()
    if rec.CreatedAt.IsZero() {
        rec.CreatedAt = time.Now().UTC()
    }
    _, err := p.db.ExecContext(ctx, `
        INSERT INTO debugging_sessions (id, created_by, code_input, error_message, programming_language,
            explanation_provided, solution_suggested, voice_used, session_duration, user_satisfaction,
            concepts_learned, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
        id, rec.UserID, rec.CodeInput, rec.ErrorMessage, string(rec.ProgrammingLanguage),
        rec.ExplanationProvided, rec.SolutionSuggested, rec.VoiceUsed, rec.SessionDuration,
        rec.UserSatisfaction, pq.Array(nonNil(rec.ConceptsLearned)), rec.CreatedAt)
    if err != nil {
        return "", fmt.Errorf("insert session: %w", err)
    }
    return id, nil
}

func (p *Postgres) ListSessions(ctx context.Context, f types.SessionFilter, order types.SessionOrder, limit int) ([]types.SessionRecord, error) {
    desc, err := orderDesc(order)
    if err != nil {
        return nil, err
    }
    query, args := buildListQuery(f, desc, limit)
    rows, err := p.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, fmt.Errorf("list sessions: %w", err)
    }
    defer rows.Close()

    out := make([]types.SessionRecord, 0)
    for rows.Next() {
        var r types.SessionRecord
        var lang string
        var concepts []string
        if err := rows.Scan(&r.ID, &r.UserID, &r.CodeInput, &r.ErrorMessage, &lang,
            &r.ExplanationProvided, &r.SolutionSuggested, &r.VoiceUsed, &r.SessionDuration,
            &r.UserSatisfaction, pq.Array(&concepts), &r.CreatedAt); err != nil {
            return nil, fmt.Errorf("scan session: %w", err)
        }
        r.ProgrammingLanguage = types.Language(lang)
        r.ConceptsLearned = nonNil(concepts)
        out = append(out, r)
    }
    return out, rows.Err()
}

// buildListQuery renders the filtered, ordered listing with positional args.
func buildListQuery(f types.SessionFilter, desc bool, limit int) (string, []any) {
    var where []string
    var args []any
    add := func(cond string, v any) {
        args = append(args, v)
        where = append(where, fmt.Sprintf(cond, len(args)))
    }
    if f.UserID != "" {
        add("created_by = $%d", f.UserID)
    }
    if f.Language != "" {
        add("programming_language = $%d", string(f.Language))
    }
    if f.VoiceUsed != nil {
        add("voice_used = $%d", *f.VoiceUsed)
    }

    var b strings.Builder
    b.WriteString(`SELECT id, created_by, code_input, error_message, programming_language,
        explanation_provided, solution_suggested, voice_used, session_duration, user_satisfaction,
        concepts_learned, created_at FROM debugging_sessions`)
    if len(where) > 0 {
        b.WriteString(" WHERE " + strings.Join(where, " AND "))
    }
    if desc {
        b.WriteString(" ORDER BY created_at DESC")
    } else {
        b.WriteString(" ORDER BY created_at ASC")
    }
    if limit > 0 {
        args = append(args, limit)
        b.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
    }
    return b.String(), args
}

func (p *Postgres) UpdateSession(ctx context.Context, id string, u types.SessionUpdate) error {
    if u.UserSatisfaction == nil {
        return nil
    }
    res, err := p.db.ExecContext(ctx, `UPDATE debugging_sessions SET user_satisfaction = $1 WHERE id = $2`, *u.UserSatisfaction, id)
    if err != nil {
        return fmt.Errorf("update session: %w", err)
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrNotFound
    }
    return nil
}

func (p *Postgres) GetUser(ctx context.Context, userID string) (types.Profile, error) {
    var prof types.Profile
    var lang string
    var last sql.NullTime
    err := p.db.QueryRowContext(ctx, `
        SELECT user_id, preferred_language, voice_enabled, speech_rate, programming_level,
            total_sessions, learning_streak, last_session_at
        FROM user_profiles WHERE user_id = $1`, userID).
        Scan(&prof.UserID, &lang, &prof.VoiceEnabled, &prof.SpeechRate, &prof.ProgrammingLevel,
            &prof.TotalSessions, &prof.LearningStreak, &last)
    if errors.Is(err, sql.ErrNoRows) {
        prof = DefaultProfile(userID)
        if err := p.upsertProfile(ctx, prof); err != nil {
            return types.Profile{}, err
        }
        return prof, nil
    }
    if err != nil {
        return types.Profile{}, fmt.Errorf("get profile: %w", err)
    }
    prof.PreferredLanguage = types.Language(lang)
    if last.Valid {
        t := last.Time
        prof.LastSessionAt = &t
    }
    return prof, nil
}

func (p *Postgres) UpdateUser(ctx context.Context, userID string, u types.ProfileUpdate) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil {
        return fmt.Errorf("begin: %w", err)
    }
    defer tx.Rollback()

    prof := DefaultProfile(userID)
    var lang string
    var last sql.NullTime
    err = tx.QueryRowContext(ctx, `
        SELECT preferred_language, voice_enabled, speech_rate, programming_level,
            total_sessions, learning_streak, last_session_at
        FROM user_profiles WHERE user_id = $1 FOR UPDATE`, userID).
        Scan(&lang, &prof.VoiceEnabled, &prof.SpeechRate, &prof.ProgrammingLevel,
            &prof.TotalSessions, &prof.LearningStreak, &last)
    switch {
    case errors.Is(err, sql.ErrNoRows):
    case err != nil:
        return fmt.Errorf("load profile: %w", err)
    default:
        prof.PreferredLanguage = types.Language(lang)
        if last.Valid {
            t := last.Time
            prof.LastSessionAt = &t
        }
    }
    prof = applyProfileUpdate(prof, u)
    if _, err := tx.ExecContext(ctx, upsertProfileSQL, profileArgs(prof)...); err != nil {
        return fmt.Errorf("save profile: %w", err)
    }
    return tx.Commit()
}

const upsertProfileSQL = `
    INSERT INTO user_profiles (user_id, preferred_language, voice_enabled, speech_rate,
        programming_level, total_sessions, learning_streak, last_session_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    ON CONFLICT (user_id) DO UPDATE SET
        preferred_language = EXCLUDED.preferred_language,
        voice_enabled = EXCLUDED.voice_enabled,
        speech_rate = EXCLUDED.speech_rate,
        programming_level = EXCLUDED.programming_level,
        total_sessions = EXCLUDED.total_sessions,
        learning_streak = EXCLUDED.learning_streak,
        last_session_at = EXCLUDED.last_session_at`

func (p *Postgres) upsertProfile(ctx context.Context, prof types.Profile) error {
    if _, err := p.db.ExecContext(ctx, upsertProfileSQL, profileArgs(prof)...); err != nil {
        return fmt.Errorf("save profile: %w", err)
    }
    return nil
}

func profileArgs(p types.Profile) []any {
    var last any
    if p.LastSessionAt != nil {
        last = *p.LastSessionAt
    }
    return []any{p.UserID, string(p.PreferredLanguage), p.VoiceEnabled, p.SpeechRate,
        p.ProgrammingLevel, p.TotalSessions, p.LearningStreak, last}
}

func nonNil(s []string) []string {
    if s == nil {
        return []string{}
    }
    return s
}
