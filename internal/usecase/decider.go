// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
	"github.com/eliteGoblin/focusd/feedbackd/internal/policy"
)

// Decision reasons.
const (
	ReasonAllowed      = "allowed"
	ReasonQuietHours   = "quiet hours"
	ReasonInteractive  = "user present"
	ReasonLedOff       = "led mode off"
	ReasonIgnoreQH     = "quiet hours ignored"
	ReasonKeywordMatch = "ignore keyword matched"
	ReasonFailOpen     = "fail open"
)

// DeciderImpl implements domain.DecisionEngine.
// Profiles and quiet hours are read from the store on every decision.
type DeciderImpl struct {
	profiles domain.ProfileStore
	prefs    policy.Prefs
	now      func() time.Time
	logger   *zap.Logger
}

// NewDecider creates a decision engine.
func NewDecider(
	profiles domain.ProfileStore,
	prefs domain.PreferenceStore,
	logger *zap.Logger,
) *DeciderImpl {
	return &DeciderImpl{
		profiles: profiles,
		prefs:    policy.NewPrefs(prefs),
		now:      time.Now,
		logger:   logger,
	}
}

// Decide evaluates n at the current time.
func (d *DeciderImpl) Decide(ctx context.Context, n domain.Notification, userPresent bool) domain.Decision {
	return d.DecideAt(ctx, n, userPresent, d.now())
}

// DecideAt evaluates n as if the current time were now.
// Any failure yields a not-suppressed decision that keeps the values the
// app requested.
func (d *DeciderImpl) DecideAt(ctx context.Context, n domain.Notification, userPresent bool, now time.Time) (dec domain.Decision) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("decision panicked, failing open",
				zap.String("app", n.AppID),
				zap.Any("panic", r))
			dec = FailOpen(n)
		}
	}()

	profile, err := d.profiles.Get(n.AppID)
	if err != nil {
		d.logger.Warn("profile unavailable, failing open",
			zap.String("app", n.AppID),
			zap.Error(err))
		return FailOpen(n)
	}

	qh := policy.LoadQuietHours(d.prefs)
	plan := buildPlan(profile, n)

	dec = domain.Decision{
		AppID:  n.AppID,
		Reason: ReasonAllowed,
		Plan:   plan,
	}

	if profile.Enabled && profile.LedMode == domain.LedModeOff {
		dec.Suppressed = true
		dec.LedOff = true
		dec.Reason = ReasonLedOff
		dec.Effects.MuteLED = true
	}

	suppress, reason := quietHoursSuppress(qh, profile, n, userPresent, now)
	if suppress {
		dec.Suppressed = true
		dec.Reason = reason
		dec.Effects = domain.FeedbackEffects{
			MuteSound:     true,
			MuteLED:       qh.MuteLED || dec.LedOff,
			MuteVibration: qh.MuteVibe,
			ShowIcon:      qh.ShowIcon,
		}
	} else if reason != "" && !dec.LedOff {
		dec.Reason = reason
	}

	d.logger.Debug("notification decided",
		zap.String("app", n.AppID),
		zap.Bool("suppressed", dec.Suppressed),
		zap.String("reason", dec.Reason))

	return dec
}

// quietHoursSuppress applies the quiet-hours rules. A non-empty reason with
// suppress=false explains an exemption.
func quietHoursSuppress(
	qh domain.QuietHoursPolicy,
	profile domain.LedProfile,
	n domain.Notification,
	userPresent bool,
	now time.Time,
) (bool, string) {
	if qh.Locked || !qh.Enabled {
		return false, ""
	}

	if profile.Enabled && profile.QhIgnore {
		keywords := SplitKeywords(profile.QhIgnoreList)
		if len(keywords) == 0 {
			return false, ReasonIgnoreQH
		}
		if MatchesAnyKeyword(keywords, n) {
			return false, ReasonKeywordMatch
		}
	}

	if policy.IsQuietNow(qh, now) {
		return true, ReasonQuietHours
	}
	if qh.Interactive && userPresent {
		return true, ReasonInteractive
	}
	return false, ""
}

// SplitKeywords splits a comma-separated keyword list, dropping blanks.
// Keywords are returned lower-cased.
func SplitKeywords(list string) []string {
	var out []string
	for _, k := range strings.Split(list, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// MatchesAnyKeyword reports whether any keyword is a case-insensitive
// substring of the ticker text or of any text fragment.
func MatchesAnyKeyword(keywords []string, n domain.Notification) bool {
	fragments := make([]string, 0, len(n.Texts)+1)
	if n.TickerText != "" {
		fragments = append(fragments, strings.ToLower(n.TickerText))
	}
	for _, t := range n.Texts {
		if t != "" {
			fragments = append(fragments, strings.ToLower(t))
		}
	}

	for _, k := range keywords {
		for _, f := range fragments {
			if strings.Contains(f, k) {
				return true
			}
		}
	}
	return false
}

func buildPlan(profile domain.LedProfile, n domain.Notification) *domain.LightPlan {
	if !profile.Enabled || (n.Ongoing && !profile.Ongoing) {
		return originalPlan(n)
	}

	plan := &domain.LightPlan{
		Color:           n.Light.Color,
		LedOnMs:         n.Light.LedOnMs,
		LedOffMs:        n.Light.LedOffMs,
		HeadsUp:         profile.HeadsUpMode,
		SoundOverride:   profile.SoundOverride,
		SoundURI:        profile.SoundURI,
		SoundOnlyOnce:   profile.SoundOnlyOnce,
		VibrateOverride: profile.VibrateOverride,
		VibratePattern:  profile.VibratePattern,
	}

	switch profile.LedMode {
	case domain.LedModeOriginal:
		plan.UseOriginal = true
	case domain.LedModeOverride:
		plan.Color = profile.Color
		plan.LedOnMs = profile.LedOnMs
		plan.LedOffMs = profile.LedOffMs
		plan.Insistent = profile.Insistent
	case domain.LedModeOff:
		plan.Color = 0
	}
	return plan
}

func originalPlan(n domain.Notification) *domain.LightPlan {
	return &domain.LightPlan{
		UseOriginal: true,
		Color:       n.Light.Color,
		LedOnMs:     n.Light.LedOnMs,
		LedOffMs:    n.Light.LedOffMs,
		HeadsUp:     domain.HeadsUpDefault,
	}
}

// FailOpen is the decision used when evaluation fails: not suppressed,
// keeping the light the app requested.
func FailOpen(n domain.Notification) domain.Decision {
	return domain.Decision{
		AppID:  n.AppID,
		Reason: ReasonFailOpen,
		Plan:   originalPlan(n),
	}
}

// Explain renders a decision on one line for the CLI.
func Explain(dec domain.Decision) string {
	return fmt.Sprintf("app=%s suppressed=%t led_off=%t reason=%q mute_sound=%t mute_led=%t mute_vibe=%t",
		dec.AppID, dec.Suppressed, dec.LedOff, dec.Reason,
		dec.Effects.MuteSound, dec.Effects.MuteLED, dec.Effects.MuteVibration)
}

// Ensure DeciderImpl implements domain.DecisionEngine.
var _ domain.DecisionEngine = (*DeciderImpl)(nil)
