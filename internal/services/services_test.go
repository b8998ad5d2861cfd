package services

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/models"
	"medops-bknd/internal/scoring"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intp(v int) *int { return &v }

func TestApplyCapacity(t *testing.T) {
	h := models.Hospital{ID: uuid.New(), TotalBeds: 50, AvailableBeds: 20, AvailableDoctors: 6, Status: scoring.StatusNormal}

	next, entry, err := applyCapacity(h, UpdateCapacityRequest{AvailableBeds: intp(2)}, "u-7")
	require.NoError(t, err)
	assert.Equal(t, 2, next.AvailableBeds)
	assert.Equal(t, 6, next.AvailableDoctors)
	assert.Equal(t, scoring.StatusCritical, next.Status)
	assert.Equal(t, models.CapacityLog{
		HospitalID:      h.ID,
		PreviousBeds:    20,
		NewBeds:         2,
		PreviousDoctors: 6,
		NewDoctors:      6,
		ActorID:         "u-7",
	}, entry)

	_, _, err = applyCapacity(h, UpdateCapacityRequest{AvailableBeds: intp(51)}, "u")
	assert.True(t, apperr.IsValidation(err))
	_, _, err = applyCapacity(h, UpdateCapacityRequest{AvailableDoctors: intp(-1)}, "u")
	assert.True(t, apperr.IsValidation(err))
	_, _, err = applyCapacity(h, UpdateCapacityRequest{}, "u")
	assert.True(t, apperr.IsValidation(err))

	next, _, err = applyCapacity(h, UpdateCapacityRequest{TotalBeds: intp(10), AvailableBeds: intp(4)}, "u")
	require.NoError(t, err)
	assert.Equal(t, scoring.StatusBusy, next.Status)
}

func TestCreateHospitalValidate(t *testing.T) {
	ok := CreateHospitalRequest{Name: " City General ", Latitude: 18.5, Longitude: 73.8, TotalBeds: 10, AvailableBeds: 3}
	require.NoError(t, ok.Validate())
	assert.Equal(t, "City General", ok.Name)

	bad := []CreateHospitalRequest{
		{Name: "", TotalBeds: 1},
		{Name: "X", Latitude: 91},
		{Name: "X", Longitude: -181},
		{Name: "X", TotalBeds: 5, AvailableBeds: 6},
		{Name: "X", TotalBeds: -1},
	}
	for _, req := range bad {
		assert.True(t, apperr.IsValidation(req.Validate()), "%+v", req)
	}
}

func kmNorth(km float64) float64 { return km / 111.195 }

func TestChooseDestination(t *testing.T) {
	near := models.Hospital{ID: uuid.New(), Name: "Near", Latitude: kmNorth(2), AvailableBeds: 12}
	far := models.Hospital{ID: uuid.New(), Name: "Far", Latitude: kmNorth(10), AvailableBeds: 40}
	critical := models.Hospital{ID: uuid.New(), Name: "Crit", Latitude: kmNorth(0.1), AvailableBeds: 1, Status: scoring.StatusCritical}
	hs := []models.Hospital{far, critical, near}

	got, err := chooseDestination(0, 0, nil, hs)
	require.NoError(t, err)
	assert.Equal(t, "Near", got.Name)

	got, err = chooseDestination(0, 0, &far.ID, hs)
	require.NoError(t, err)
	assert.Equal(t, "Far", got.Name)

	missing := uuid.New()
	_, err = chooseDestination(0, 0, &missing, hs)
	assert.True(t, apperr.IsValidation(err))

	_, err = chooseDestination(0, 0, nil, []models.Hospital{critical})
	assert.ErrorIs(t, err, ErrNoDestination)
	_, err = chooseDestination(0, 0, nil, nil)
	assert.ErrorIs(t, err, ErrNoDestination)
}

func TestCreateDispatchValidate(t *testing.T) {
	req := CreateDispatchRequest{OriginLat: 18.5, OriginLng: 73.8, PatientCondition: " chest pain ", AmbulanceCode: " amb-7 "}
	require.NoError(t, req.Validate())
	assert.Equal(t, models.PriorityMedium, req.Priority)
	assert.Equal(t, "AMB-7", req.AmbulanceCode)
	assert.Equal(t, "chest pain", req.PatientCondition)

	bad := CreateDispatchRequest{OriginLat: 18.5, OriginLng: 73.8, PatientCondition: "x", Priority: "urgent"}
	assert.True(t, apperr.IsValidation(bad.Validate()))
	noCondition := CreateDispatchRequest{OriginLat: 18.5}
	assert.True(t, apperr.IsValidation(noCondition.Validate()))
}

func TestJourneyKey(t *testing.T) {
	d := &models.DispatchRequest{ID: uuid.New()}
	assert.Equal(t, d.ID.String(), journeyKey(d))
	d.AmbulanceCode = "AMB-1"
	assert.Equal(t, "AMB-1", journeyKey(d))
}

func TestCreateTransferValidate(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	req := CreateTransferRequest{SourceHospitalID: a, DestinationHospitalID: b, PatientName: "R. Patil", Reason: "needs cath lab"}
	require.NoError(t, req.Validate())
	assert.Equal(t, models.UrgencyRoutine, req.Urgency)

	same := CreateTransferRequest{SourceHospitalID: a, DestinationHospitalID: a, PatientName: "x", Reason: "y"}
	assert.True(t, apperr.IsValidation(same.Validate()))
	noReason := CreateTransferRequest{SourceHospitalID: a, DestinationHospitalID: b, PatientName: "x"}
	assert.True(t, apperr.IsValidation(noReason.Validate()))
	badUrgency := CreateTransferRequest{SourceHospitalID: a, DestinationHospitalID: b, PatientName: "x", Reason: "y", Urgency: "asap"}
	assert.True(t, apperr.IsValidation(badUrgency.Validate()))
}

func TestRejectRequiresReason(t *testing.T) {
	s := NewTransferService(nil, nil, zap.NewNop())
	_, err := s.Reject(context.Background(), uuid.New(), "   ", "u1")
	assert.True(t, apperr.IsValidation(err))
}

func TestStaffValidationAndAllocation(t *testing.T) {
	req := CreateStaffRequest{HospitalID: uuid.New(), FullName: "Dr. Rao", Role: "Doctor", Department: "Cardiology", Shift: "Night"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "doctor", req.Role)
	assert.Equal(t, "night", req.Shift)

	bad := CreateStaffRequest{HospitalID: uuid.New(), FullName: "X", Role: "janitor", Department: "ER"}
	assert.True(t, apperr.IsValidation(bad.Validate()))

	dept := " ICU "
	onDuty := true
	alloc := AllocationRequest{Department: &dept, OnDuty: &onDuty}
	cols, err := alloc.columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"department", "on_duty"}, cols)
	assert.Equal(t, "ICU", *alloc.Department)

	empty := AllocationRequest{}
	_, err = empty.columns()
	assert.True(t, apperr.IsValidation(err))

	shift := "afternoon"
	badShift := AllocationRequest{Shift: &shift}
	_, err = badShift.columns()
	assert.True(t, apperr.IsValidation(err))
}

func TestGroupByDepartment(t *testing.T) {
	staff := []models.Staff{
		{FullName: "A", Department: "Surgery", OnDuty: true},
		{FullName: "B", Department: "Cardiology"},
		{FullName: "C", Department: "Surgery"},
	}
	got := groupByDepartment(staff)
	require.Len(t, got, 2)
	assert.Equal(t, "Cardiology", got[0].Department)
	assert.Equal(t, "Surgery", got[1].Department)
	assert.Equal(t, 2, got[1].Total)
	assert.Equal(t, 1, got[1].OnDuty)
	assert.Equal(t, "A", got[1].Staff[0].FullName)

	assert.Equal(t, []DepartmentStaff{}, groupByDepartment(nil))
}

func TestSurgeReportAndPressureBoard(t *testing.T) {
	hs := []models.Hospital{
		{Name: "A", TotalBeds: 50, AvailableBeds: 10},
		{Name: "B", TotalBeds: 60, AvailableBeds: 20},
		{Name: "C", TotalBeds: 40, AvailableBeds: 5},
		{Name: "D", TotalBeds: 35, AvailableBeds: 2},
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rep := surgeReport(hs, 10, 2*time.Hour, now)
	assert.Equal(t, 80, rep.Prediction.CurrentOccupancy)
	assert.Equal(t, 85, rep.Prediction.PredictedOccupancy)
	assert.Equal(t, scoring.RiskHigh, rep.Prediction.SurgeRisk)
	assert.Equal(t, "2h0m0s", rep.Window)

	board := pressureBoard(hs)
	require.Len(t, board, 4)
	for i := 1; i < len(board); i++ {
		assert.GreaterOrEqual(t, board[i-1].PressureScore, board[i].PressureScore)
	}
	assert.Equal(t, "D", board[0].Name)
}

type mockCache struct {
	store   map[string]any
	getErr  error
	sets    int
	deleted []string
}

func (m *mockCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	v, ok := m.store[key]
	if !ok {
		return false, nil
	}
	*(dst.(*[]models.HospitalPressure)) = v.([]models.HospitalPressure)
	return true, nil
}

func (m *mockCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	m.sets++
	m.store[key] = v
	return nil
}

func (m *mockCache) Delete(_ context.Context, keys ...string) error {
	m.deleted = append(m.deleted, keys...)
	for _, k := range keys {
		delete(m.store, k)
	}
	return nil
}

func TestCachedReadThrough(t *testing.T) {
	mc := &mockCache{store: map[string]any{}}
	s := NewAnalyticsService(nil, nil, mc, time.Minute, time.Hour, zap.NewNop())

	computes := 0
	compute := func(context.Context) ([]models.HospitalPressure, error) {
		computes++
		return []models.HospitalPressure{{Name: "A", PressureScore: 90}}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := cached(context.Background(), s, pressureCacheKey, compute)
		require.NoError(t, err)
		assert.Equal(t, 90, got[0].PressureScore)
	}
	assert.Equal(t, 1, computes)
	assert.Equal(t, 1, mc.sets)

	s.Invalidate(context.Background())
	assert.Equal(t, []string{pressureCacheKey, surgeCacheKey}, mc.deleted)
	_, err := cached(context.Background(), s, pressureCacheKey, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, computes)
}

func TestCachedDegradesOnCacheError(t *testing.T) {
	mc := &mockCache{store: map[string]any{}, getErr: errors.New("redis down")}
	s := NewAnalyticsService(nil, nil, mc, time.Minute, time.Hour, zap.NewNop())

	got, err := cached(context.Background(), s, pressureCacheKey, func(context.Context) ([]models.HospitalPressure, error) {
		return []models.HospitalPressure{{Name: "B"}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "B", got[0].Name)

	_, err = cached(context.Background(), s, pressureCacheKey, func(context.Context) ([]models.HospitalPressure, error) {
		return nil, apperr.Fetch("hospitals", errors.New("timeout"))
	})
	var fe *apperr.FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestSurgeAlertMessage(t *testing.T) {
	pred := scoring.PredictSurge(scoring.NetworkSnapshot{Hospitals: 4, TotalBeds: 185, AvailableBeds: 37, CriticalCount: 1, RecentEvents: 10})
	a := surgeAlert(pred, scoring.NetworkSnapshot{Hospitals: 4, CriticalCount: 1})
	assert.Equal(t, AlertKindSurge, a.Kind)
	assert.Equal(t, "critical", a.Severity)
	assert.Contains(t, a.Message, "Occupancy 80%")
	assert.Contains(t, a.Message, "1 of 4 hospitals critical")
}

func TestCreateAlertValidate(t *testing.T) {
	req := CreateAlertRequest{Title: " Oxygen low "}
	require.NoError(t, req.Validate())
	assert.Equal(t, "info", req.Severity)
	assert.Equal(t, "Oxygen low", req.Title)

	bad := CreateAlertRequest{Title: "x", Severity: "apocalyptic"}
	assert.True(t, apperr.IsValidation(bad.Validate()))
}

func TestValidateQueueEvent(t *testing.T) {
	ev := models.QueueEvent{PatientLabel: "P-1", Department: "ER"}
	require.NoError(t, validateQueueEvent(&ev))
	assert.Equal(t, models.QueueArrival, ev.EventType)
	assert.Equal(t, "medium", ev.Severity)

	assert.True(t, apperr.IsValidation(validateQueueEvent(&models.QueueEvent{Department: "ER"})))
	assert.True(t, apperr.IsValidation(validateQueueEvent(&models.QueueEvent{PatientLabel: "x", Department: "ER", EventType: "lost"})))
}

func TestRegisterUserValidate(t *testing.T) {
	req := RegisterUserRequest{Email: " Ops@City.Example ", Password: "s3cretpass", Name: "Ops", Roles: []string{"operator"}}
	require.NoError(t, req.Validate())
	assert.Equal(t, "ops@city.example", req.Email)

	short := RegisterUserRequest{Email: "a@b.c", Password: "short", Name: "x"}
	assert.True(t, apperr.IsValidation(short.Validate()))
	badRole := RegisterUserRequest{Email: "a@b.c", Password: "longenough", Name: "x", Roles: []string{"superuser"}}
	assert.True(t, apperr.IsValidation(badRole.Validate()))
}

func TestLDAPHelpers(t *testing.T) {
	assert.Equal(t, "jdoe", normalizeLDAPUser(" jdoe@CityHealth.org ", "cityhealth.org"))
	assert.Equal(t, "jdoe", normalizeLDAPUser("jdoe", "cityhealth.org"))
	assert.Equal(t, "jdoe@other.org", normalizeLDAPUser("jdoe@other.org", "cityhealth.org"))
	assert.Equal(t, "jdoe@CITYHEALTH.ORG", bindPrincipal("jdoe", "cityhealth.org"))
	assert.Equal(t, "jdoe", bindPrincipal("jdoe", ""))

	roles := rolesFromGroups([]string{
		"CN=Dispatcher,OU=Groups,DC=city,DC=org",
		"CN=Finance,OU=Groups,DC=city,DC=org",
		"cn=dispatcher,ou=Other,dc=city,dc=org",
		"CN=doctor,OU=Groups,DC=city,DC=org",
		"not a dn",
	})
	assert.Equal(t, []string{"dispatcher", "doctor"}, roles)
	assert.Empty(t, rolesFromGroups(nil))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "correct horse"))
	assert.Error(t, ComparePassword(hash, "wrong horse"))
}

type fakeResult struct {
	n   int64
	err error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, r.err }

func TestAffectedAndLookup(t *testing.T) {
	assert.NoError(t, affected("op", fakeResult{n: 1}, nil))
	assert.ErrorIs(t, affected("op", fakeResult{n: 0}, nil), apperr.ErrNotFound)
	assert.ErrorIs(t, affected("op", nil, sql.ErrNoRows), apperr.ErrNotFound)

	var we *apperr.WriteError
	assert.ErrorAs(t, affected("op", nil, errors.New("deadlock")), &we)

	assert.ErrorIs(t, lookup("op", sql.ErrNoRows), apperr.ErrNotFound)
	var fe *apperr.FetchError
	assert.ErrorAs(t, lookup("op", errors.New("timeout")), &fe)
}

func TestClampLimitAndParseID(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, 25, clampLimit(25))
	assert.Equal(t, maxListLimit, clampLimit(10_000))

	id := uuid.New()
	got, err := ParseID("id", id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)
	_, err = ParseID("id", "nope")
	assert.True(t, apperr.IsValidation(err))
}

func TestValidateCoordinates(t *testing.T) {
	assert.NoError(t, ValidateCoordinates(18.52, 73.85))
	assert.NoError(t, ValidateCoordinates(-90, 180))

	for _, c := range [][2]float64{
		{math.NaN(), 73.8},
		{18.5, math.NaN()},
		{math.Inf(1), 0},
		{0, math.Inf(-1)},
		{999, 73.8},
		{18.5, -181},
	} {
		err := ValidateCoordinates(c[0], c[1])
		var ve *apperr.ValidationError
		assert.ErrorAs(t, err, &ve, "%v", c)
	}
}
