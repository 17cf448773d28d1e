package session

import "time"

// TodayStats summarizes today's prompt activity for the stats service.
type TodayStats struct {
	PromptCount   int     `json:"promptCount"`
	AverageScore  float64 `json:"averageScore"`
	BestScore     float64 `json:"bestScore"`
	WorstScore    float64 `json:"worstScore"`
	CodingMinutes int     `json:"codingMinutes"`
	SessionCount  int     `json:"sessionCount"`
}

// TodayStatsNow aggregates over sessions touched today. The worst score
// excludes zero-scored (unscored) prompts.
func (m *Manager) TodayStatsNow() TodayStats {
	now := m.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	m.store.RLockGraph()
	defer m.store.RUnlockGraph()

	var out TodayStats
	sum := 0.0

	for _, proj := range m.store.AllProjects() {
		for _, s := range proj.Sessions {
			if s.LastActivity.Before(dayStart) {
				continue
			}
			out.SessionCount++
			out.CodingMinutes += int(s.Duration() / time.Minute)

			for _, p := range s.Prompts {
				if p.Timestamp.Before(dayStart) {
					continue
				}
				out.PromptCount++
				sum += p.Score
				if p.Score > out.BestScore {
					out.BestScore = p.Score
				}
				if p.Score > 0 && (out.WorstScore == 0 || p.Score < out.WorstScore) {
					out.WorstScore = p.Score
				}
			}
		}
	}

	if out.PromptCount > 0 {
		out.AverageScore = sum / float64(out.PromptCount)
	}
	return out
}
