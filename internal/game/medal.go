package game

// Grade is a daily medal. The zero value means no medal.
type Grade string

const (
	GradeNone   Grade = ""
	GradeBronze Grade = "B"
	GradeSilver Grade = "S"
	GradeGold   Grade = "G"
)

const (
	goldRatio   = 1.0
	silverRatio = 0.66
	bronzeRatio = 0.33
)

// GradeFor maps the same-day completion ratio done/total to a grade.
func GradeFor(done, total int) Grade {
	if total <= 0 || done <= 0 {
		return GradeNone
	}
	ratio := float64(done) / float64(total)
	switch {
	case ratio >= goldRatio:
		return GradeGold
	case ratio >= silverRatio:
		return GradeSilver
	case ratio >= bronzeRatio:
		return GradeBronze
	}
	return GradeNone
}

func (g Grade) Valid() bool {
	return g == GradeBronze || g == GradeSilver || g == GradeGold
}
