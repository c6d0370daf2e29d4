// Package seed loads the starter set of coastal regions and missions.
package seed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

type regionSeed struct {
	id, name, province, district string
	lat, lon                     float64
	price                        int64
	shares                       int64
}

var regions = []regionSeed{
	{"busan-haeundae", "부산 해운대해수욕장", "부산광역시", "해운대구", 35.1587, 129.1604, 12000, 1000},
	{"busan-gwangalli", "부산 광안리해수욕장", "부산광역시", "수영구", 35.1532, 129.1186, 10000, 1000},
	{"jeju-hyeopjae", "제주 협재해수욕장", "제주특별자치도", "제주시", 33.3940, 126.2397, 9000, 800},
	{"jeju-jungmun", "제주 중문색달해수욕장", "제주특별자치도", "서귀포시", 33.2450, 126.4110, 8500, 800},
	{"taean-mallipo", "태안 만리포해수욕장", "충청남도", "태안군", 36.7862, 126.1421, 6000, 600},
	{"gangneung-gyeongpo", "강릉 경포해수욕장", "강원특별자치도", "강릉시", 37.8057, 128.9081, 7000, 600},
	{"sokcho", "속초해수욕장", "강원특별자치도", "속초시", 38.1905, 128.6027, 6500, 500},
	{"yeosu-manseongri", "여수 만성리검은모래해변", "전라남도", "여수시", 34.7730, 127.7556, 5000, 500},
	{"pohang-yeongildae", "포항 영일대해수욕장", "경상북도", "포항시", 36.0563, 129.3780, 5500, 500},
	{"incheon-eurwangni", "인천 을왕리해수욕장", "인천광역시", "중구", 37.4476, 126.3727, 6000, 600},
}

// Regions inserts every starter region that does not exist yet and returns
// how many were created.
func Regions(ctx context.Context, st store.Store, now time.Time, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	created := 0
	err := st.InTx(ctx, func(tx store.Repository) error {
		created = 0
		for _, s := range regions {
			_, err := tx.GetRegion(ctx, s.id)
			if err == nil {
				continue
			}
			if !errors.Is(err, model.ErrNotFound) {
				return err
			}
			price := decimal.NewFromInt(s.price)
			if err := tx.CreateRegion(ctx, &model.Region{
				ID:              s.id,
				Name:            s.name,
				Province:        s.province,
				District:        s.district,
				Lat:             s.lat,
				Lon:             s.lon,
				BasePrice:       price,
				CurrentPrice:    price,
				TotalShares:     s.shares,
				AvailableShares: s.shares,
				CreatedAt:       now,
				UpdatedAt:       now,
			}); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info("regions seeded", "created", created, "total", len(regions))
	return created, nil
}

var missions = []model.Mission{
	{ID: "daily-sea-photo", Todo: "바다 가서 사진 찍기", Credits: decimal.NewFromInt(100), Kind: model.MissionDaily},
	{ID: "daily-marine-life", Todo: "해양 생물 관찰하기", Credits: decimal.NewFromInt(150), Kind: model.MissionDaily},
	{ID: "daily-tumbler", Todo: "해변에서 텀블러 사용하기", Credits: decimal.NewFromInt(120), Kind: model.MissionDaily},
	{ID: "special-beach-cleanup", Todo: "해변 정화 활동 참여하기", Credits: decimal.NewFromInt(500), Kind: model.MissionSpecial},
}

// Missions inserts every starter mission that does not exist yet and returns
// how many were created.
func Missions(ctx context.Context, st store.Store, now time.Time, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	created := 0
	err := st.InTx(ctx, func(tx store.Repository) error {
		created = 0
		for _, m := range missions {
			_, err := tx.GetMission(ctx, m.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, model.ErrNotFound) {
				return err
			}
			m.CreatedAt = now
			if err := tx.CreateMission(ctx, &m); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info("missions seeded", "created", created, "total", len(missions))
	return created, nil
}
