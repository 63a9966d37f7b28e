package view

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jrgparkinson/tracksplits/internal/models"
	"github.com/jrgparkinson/tracksplits/internal/splits"
)

// FormatDistances renders a plan for the editable splits field, to the
// nearest centimetre.
func FormatDistances(plan models.SplitPlan) string {
	parts := make([]string, len(plan))
	for i, d := range plan {
		parts[i] = strconv.FormatFloat(math.Round(d*100)/100, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}

func splitTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// NormalizeDistances rewrites user-edited split text into the comma
// separated form the fitting service expects: separators may be commas or
// whitespace and empty entries are dropped.
func NormalizeDistances(text string) string {
	return strings.Join(splitTokens(text), ",")
}

// ParseDistances parses user-edited split text.
func ParseDistances(text string) (models.SplitPlan, error) {
	tokens := splitTokens(text)
	plan := make(models.SplitPlan, 0, len(tokens))
	for _, tok := range tokens {
		d, err := strconv.ParseFloat(tok, 64)
		if err != nil || d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("invalid split distance %q", tok)
		}
		plan = append(plan, d)
	}
	return plan, nil
}

// DateWindow returns the (before, after) unix bounds used to search for
// activities around date: three days either side.
func DateWindow(date time.Time) (before, after int64) {
	return date.AddDate(0, 0, 3).Unix(), date.AddDate(0, 0, -3).Unix()
}

var activityPath = regexp.MustCompile(`^/activities/(\d+)/?$`)

// ParseActivityRef extracts an activity id from a bare id or an activity
// URL such as https://www.strava.com/activities/123.
func ParseActivityRef(ref string) (int64, error) {
	ref = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ref), "#"))
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	u, err := url.Parse(ref)
	if err == nil && u.Host != "" {
		if m := activityPath.FindStringSubmatch(u.Path); m != nil {
			if id, err := strconv.ParseInt(m[1], 10, 64); err == nil && id > 0 {
				return id, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: not an activity id or URL: %q", splits.ErrInvalidArgument, ref)
}

// ActivityURL links to an activity on Strava.
func ActivityURL(id int64) string {
	return "http://www.strava.com/activities/" + strconv.FormatInt(id, 10)
}

// FormatSplitTime renders a split for an activity description: whole
// seconds for splits under two minutes, m:ss otherwise.
func FormatSplitTime(s models.Split) string {
	mins, errM := s.SplitMins.Float()
	secs, errS := s.SplitSecs.Float()
	if errM == nil && errS == nil && mins < 2 {
		return strconv.FormatFloat(mins*60+secs, 'f', -1, 64)
	}
	return string(s.SplitMins) + ":" + string(s.SplitSecs)
}
