package orchestrator

import (
    "context"
    "fmt"
    "strings"
    "time"

    "codetutor/voicedebug/internal/types"
)

// analyze starts the analysis pipeline. Validation and busy conditions are
// reported synchronously; the request itself runs in the background.
func (o *Orchestrator) analyze() error {
    o.mu.Lock()
    if o.closed {
        o.mu.Unlock()
        return ErrClosed
    }
    if strings.TrimSpace(o.code) == "" {
        o.mu.Unlock()
        metricAnalysisRequests.WithLabelValues("empty_code").Inc()
        o.notify(NoticeValidation, msgEmptyCode)
        return ErrEmptyCode
    }
    if o.state == StateAnalyzing {
        o.mu.Unlock()
        metricAnalysisRequests.WithLabelValues("busy").Inc()
        o.notify(NoticeBusy, msgBusy)
        return ErrBusy
    }
    o.setState(StateAnalyzing)
    req := AnalysisRequest{Code: o.code, Language: o.language, SkillLevel: o.skill}
    voice := o.prefs.VoiceEnabled
    o.wg.Add(1)
    o.mu.Unlock()

    o.publish("analysis_started", map[string]any{"language": string(req.Language)})

    ctx, cancel := context.WithCancel(o.baseCtx)
    o.attachAnalysis(cancel)
    go o.runAnalysis(ctx, req, voice)
    return nil
}

func (o *Orchestrator) runAnalysis(ctx context.Context, req AnalysisRequest, voice bool) {
    defer o.wg.Done()
    defer o.detachAnalysis()

    start := time.Now()
    exp, err := o.analyzer.Analyze(ctx, req)
    metricAnalysisLatency.Observe(float64(time.Since(start).Milliseconds()))
    if err != nil {
        o.fail("analysis", err)
        return
    }

    rec := types.SessionRecord{
        UserID:              o.userID,
        CodeInput:           req.Code,
        ProgrammingLanguage: req.Language,
        ExplanationProvided: exp.SimpleExplanation,
        SolutionSuggested:   exp.Solution,
        VoiceUsed:           voice,
        SessionDuration:     o.sessionMinutes(),
        ConceptsLearned:     append([]string{}, exp.LearningPoints...),
    }
    recID, err := o.sessions.CreateSession(ctx, rec)
    if err != nil {
        o.fail("persist", err)
        return
    }

    o.mu.Lock()
    o.explanation = exp.Clone()
    o.revision++
    rev := o.revision
    if voice && o.awaitSettle {
        o.pending = rev
    }
    o.setState(StateIdle)
    o.mu.Unlock()

    metricAnalysisRequests.WithLabelValues("ok").Inc()
    o.log.Info().Str("record_id", recID).Str("error_type", exp.ErrorType).Uint64("revision", rev).Msg("analysis complete")

    o.updateProfile(ctx)

    o.publish("explanation_ready", map[string]any{"revision": rev, "record_id": recID, "error_type": exp.ErrorType})
    o.publishDraft()
    if voice && !o.awaitSettle {
        o.emitNarration(rev, NarrationText(exp))
    }
}

// fail returns to Idle without touching the explanation.
func (o *Orchestrator) fail(stage string, err error) {
    o.mu.Lock()
    o.setState(StateIdle)
    o.mu.Unlock()
    metricAnalysisRequests.WithLabelValues("failed").Inc()
    o.log.Error().Err(err).Str("stage", stage).Msg("analysis failed")
    o.notify(NoticeServiceFailure, msgServiceFailure)
    o.publish("analysis_failed", map[string]any{"stage": stage, "error": fmt.Errorf("%w: %v", ErrService, err).Error()})
    o.publishDraft()
}

// updateProfile bumps the session counter and the daily learning streak.
// Failures are logged only; the session record already exists.
func (o *Orchestrator) updateProfile(ctx context.Context) {
    p, err := o.profiles.GetUser(ctx, o.userID)
    if err != nil {
        o.log.Warn().Err(err).Msg("profile read failed")
        return
    }
    now := o.now()
    total := p.TotalSessions + 1
    streak := nextStreak(p.LearningStreak, p.LastSessionAt, now)
    if err := o.profiles.UpdateUser(ctx, o.userID, types.ProfileUpdate{
        TotalSessions:  &total,
        LearningStreak: &streak,
        LastSessionAt:  &now,
    }); err != nil {
        o.log.Warn().Err(err).Msg("profile update failed")
    }
}

// nextStreak counts consecutive calendar days with at least one session.
func nextStreak(streak int, last *time.Time, now time.Time) int {
    if last == nil || streak < 1 {
        return 1
    }
    ly, lm, ld := last.In(now.Location()).Date()
    lastDay := time.Date(ly, lm, ld, 0, 0, 0, 0, now.Location())
    ny, nm, nd := now.Date()
    today := time.Date(ny, nm, nd, 0, 0, 0, 0, now.Location())
    switch {
    case today.Equal(lastDay):
        return streak
    case today.Equal(lastDay.AddDate(0, 0, 1)):
        return streak + 1
    default:
        return 1
    }
}

func (o *Orchestrator) sessionMinutes() int {
    o.mu.Lock()
    started := o.startedAt
    o.mu.Unlock()
    if started.IsZero() {
        return 0
    }
    return int(o.now().Sub(started).Minutes())
}
