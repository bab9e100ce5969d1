package evsk

import "testing"

func TestNormalizeRank(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"kms abbreviation", "КМС", KMS},
		{"kms full", "Кандидат в мастера спорта", KMS},
		{"ms abbreviation", "МС", MS},
		{"ms full", "мастер спорта", MS},
		{"msmk abbreviation", "МСМК", MSMK},
		{"msmk full", "мастер спорта России международного класса", MSMK},
		{"zms", "ЗМС", ZMS},
		{"grandmaster abbreviation", "ГМ", GM},
		{"grandmaster full", "Гроссмейстер России", GM},
		{"honored coach", "ЗТР", ZTR},
		{"honored coach full", "заслуженный тренер России", ZTR},

		{"first adult roman", "I разряд", RankFirst},
		{"second adult roman", "II разряд", RankSecond},
		{"third adult roman", "III разряд", RankThird},
		{"first adult arabic", "1 разряд", RankFirst},
		{"second adult spelled", "второй спортивный разряд", RankSecond},
		{"second adult mixed", "II спортивный разряд", RankSecond},

		{"first youth", "1 юношеский разряд", YouthFirst},
		{"third youth spelled", "третий юношеский спортивный разряд", YouthThird},

		{"judge third split across lines", "Спортивный судья третьей\nкатегории", JudgeThird},
		{"judge all russian", "спортивный судья всероссийской категории", JudgeAllRussian},
		{"judge first", "судья первой категории", JudgeFirst},
		{"judge second", "Спортивный судья II категории", JudgeSecond},
		{"judge youth", "юный спортивный судья", JudgeYouth},

		{"specialist highest", "высшая квалификационная категория", SpecialistHighest},

		{"honorary judge", "почетный спортивный судья", HonoraryJudge},

		{"empty", "", ""},
		{"garbage", "директор департамента", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := NormalizeRank(tt.in); got != tt.want {
				t.Errorf("NormalizeRank(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Roman numeral I must never match inside II or III.
func TestNormalizeRankNoPrefixSwallow(t *testing.T) {
	if got, _ := NormalizeRank("II разряд"); got == RankFirst {
		t.Fatal("II matched as first rank")
	}
	if got, _ := NormalizeRank("III разряд"); got != RankThird {
		t.Fatalf("III разряд = %q", got)
	}
}

func TestNormalizeRankConfidence(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"КМС", 1},
		{"кандидат в мастера спорта", 0.9},
		{"II спортивный разряд", 0.9},
		{"директор департамента", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if _, conf := NormalizeRank(tt.in); conf != tt.want {
			t.Errorf("NormalizeRank(%q) confidence = %v, want %v", tt.in, conf, tt.want)
		}
	}
}

func TestNormalizeRankYoFolding(t *testing.T) {
	if got, _ := NormalizeRank("ПОЧЁТНЫЙ ТРЕНЕР"); got != HonoraryCoach {
		t.Fatalf("yo folding failed: %q", got)
	}
}
