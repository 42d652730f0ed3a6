package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abnzrdev/tynys-ingest/internal/domain"
)

func TestLatestReadings(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT r.reading_id, r.sensor_id, sn.device_id, st.site_name`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{
			"reading_id", "sensor_id", "device_id", "site_name", "timestamp",
			"pm25", "pm10", "co2", "temperature", "humidity",
			"battery_level", "signal_strength", "aqi_category",
		}).
			AddRow(2, 10, "dev-001", "Almaty Central", now, 42.5, nil, 800.0, 21.5, nil, 87.0, -70.0, "medium").
			AddRow(1, 11, "dev-002", nil, now, 8.0, 12.0, nil, nil, nil, nil, nil, "low"))

	readings, err := s.LatestReadings(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, int64(2), readings[0].ReadingID)
	require.NotNil(t, readings[0].SiteName)
	assert.Equal(t, "Almaty Central", *readings[0].SiteName)
	assert.Equal(t, 42.5, *readings[0].PM25)
	assert.Nil(t, readings[0].PM10)
	assert.Equal(t, domain.AqiMedium, readings[0].AqiCategory)

	assert.Nil(t, readings[1].SiteName)
	assert.Equal(t, domain.AqiLow, readings[1].AqiCategory)
}

func TestRollups(t *testing.T) {
	from := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("hourly buckets", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectQuery(`DATE_FORMAT\(timestamp, '%Y-%m-%d %H:00:00'\)`).
			WithArgs("dev-001", from, to).
			WillReturnRows(sqlmock.NewRows([]string{
				"bucket", "count", "avg_pm25", "min_pm25", "max_pm25",
				"avg_pm10", "avg_co2", "avg_temp", "avg_hum",
			}).AddRow("2025-03-14 10:00:00", 12, 30.5, 20.0, 45.0, nil, 810.0, 21.0, 44.0))

		rollups, err := s.Rollups(context.Background(), "dev-001", BucketHour, from, to)
		require.NoError(t, err)
		require.Len(t, rollups, 1)
		assert.Equal(t, "2025-03-14 10:00:00", rollups[0].Bucket)
		assert.Equal(t, int64(12), rollups[0].Count)
		assert.Equal(t, 30.5, *rollups[0].AvgPM25)
		assert.Nil(t, rollups[0].AvgPM10)
	})

	t.Run("daily buckets truncate to midnight", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectQuery(`DATE_FORMAT\(timestamp, '%Y-%m-%d 00:00:00'\)`).
			WithArgs("dev-001", from, to).
			WillReturnRows(sqlmock.NewRows([]string{
				"bucket", "count", "avg_pm25", "min_pm25", "max_pm25",
				"avg_pm10", "avg_co2", "avg_temp", "avg_hum",
			}))

		_, err := s.Rollups(context.Background(), "dev-001", BucketDay, from, to)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown bucket rejected before querying", func(t *testing.T) {
		s, _ := newMockStore(t)
		_, err := s.Rollups(context.Background(), "dev-001", Bucket("week"), from, to)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown rollup bucket")
	})
}

func TestReadingsExceeding(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("thresholds combined with OR", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectQuery(`r.pm25 > \? OR r.co2 > \?`).
			WithArgs(50.0, 1000.0).
			WillReturnRows(sqlmock.NewRows([]string{
				"reading_id", "sensor_id", "device_id", "site_name", "timestamp", "pm25", "pm10", "co2",
			}).AddRow(1, 10, "dev-001", nil, now, 80.0, nil, nil))

		readings, err := s.ReadingsExceeding(context.Background(), ExceedFilter{
			PM25: fp(50), CO2: fp(1000),
		})
		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.Equal(t, 80.0, *readings[0].PM25)
	})

	t.Run("date range narrows the query", func(t *testing.T) {
		s, mock := newMockStore(t)
		from := now.Add(-time.Hour)

		mock.ExpectQuery(`r.pm25 > \?.+r.timestamp >= \?`).
			WithArgs(50.0, from).
			WillReturnRows(sqlmock.NewRows([]string{
				"reading_id", "sensor_id", "device_id", "site_name", "timestamp", "pm25", "pm10", "co2",
			}))

		_, err := s.ReadingsExceeding(context.Background(), ExceedFilter{PM25: fp(50), From: &from})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no thresholds is an error", func(t *testing.T) {
		s, _ := newMockStore(t)
		_, err := s.ReadingsExceeding(context.Background(), ExceedFilter{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one threshold")
	})
}

func TestLowBatterySensors(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`battery_level < \?`).
		WithArgs(20.0).
		WillReturnRows(sqlmock.NewRows([]string{
			"sensor_id", "device_id", "site_name", "battery_level", "timestamp",
		}).AddRow(10, "dev-001", "Almaty Central", 12.0, now))

	sensors, err := s.LowBatterySensors(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	assert.Equal(t, "dev-001", sensors[0].DeviceID)
	assert.Equal(t, 12.0, sensors[0].Battery)
}

func TestSensorsWithinRadius(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`HAVING distance_km <= \?`).
		WithArgs(43.238, 76.945, 43.238, 5.0).
		WillReturnRows(sqlmock.NewRows([]string{
			"sensor_id", "device_id", "site_name", "latitude", "longitude", "distance_km",
		}).AddRow(10, "dev-001", nil, 43.25, 76.95, 1.4))

	sensors, err := s.SensorsWithinRadius(context.Background(), 43.238, 76.945, 5)
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	assert.Equal(t, 1.4, sensors[0].DistanceKM)
	assert.Nil(t, sensors[0].SiteName)
}
