package sale

import "fmt"

const titleAttempts = 10

// uniqueTitle picks "Абонемент №<d><nnn>" with a classifier digit 1-9 and
// a suffix 100-999 that no existing type uses. After repeated collisions
// the suffix becomes a unix timestamp.
func (s *Service) uniqueTitle(taken map[string]bool) string {
	classifier := 1 + s.intn(9)
	for i := 0; i < titleAttempts; i++ {
		title := fmt.Sprintf("Абонемент №%d%d", classifier, 100+s.intn(900))
		if !taken[title] {
			return title
		}
	}
	return fmt.Sprintf("Абонемент №%d-%d", classifier, s.now().Unix())
}
