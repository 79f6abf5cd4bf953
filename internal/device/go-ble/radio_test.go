package goble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/bletrack/internal/device"
	"github.com/srg/bletrack/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// fakeAdvertisement implements ble.Advertisement with decoded fields only,
// the way CoreBluetooth delivers them.
type fakeAdvertisement struct {
	addr        string
	name        string
	rssi        int
	txPower     int
	services    []ble.UUID
	mfg         []byte
	serviceData []ble.ServiceData
}

func (a *fakeAdvertisement) LocalName() string              { return a.name }
func (a *fakeAdvertisement) ManufacturerData() []byte       { return a.mfg }
func (a *fakeAdvertisement) ServiceData() []ble.ServiceData { return a.serviceData }
func (a *fakeAdvertisement) Services() []ble.UUID           { return a.services }
func (a *fakeAdvertisement) OverflowService() []ble.UUID    { return nil }
func (a *fakeAdvertisement) TxPowerLevel() int              { return a.txPower }
func (a *fakeAdvertisement) Connectable() bool              { return true }
func (a *fakeAdvertisement) SolicitedService() []ble.UUID   { return nil }
func (a *fakeAdvertisement) RSSI() int                      { return a.rssi }
func (a *fakeAdvertisement) Addr() ble.Addr                 { return ble.NewAddr(a.addr) }

// rawAdvertisement also exposes the undecoded payload, like the HCI back end.
type rawAdvertisement struct {
	fakeAdvertisement
	data, scanRsp []byte
	addrType      uint8
}

func (a *rawAdvertisement) Data() []byte         { return a.data }
func (a *rawAdvertisement) ScanResponse() []byte { return a.scanRsp }
func (a *rawAdvertisement) AddressType() uint8   { return a.addrType }

// fakeScanDevice delivers a fixed set of advertisements and then blocks until
// the scan context ends, unless scanErr is set.
type fakeScanDevice struct {
	mu      sync.Mutex
	advs    []ble.Advertisement
	scanErr error
	scans   int
	stopped bool
}

func (d *fakeScanDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	d.mu.Lock()
	d.scans++
	advs, scanErr := d.advs, d.scanErr
	d.mu.Unlock()

	if scanErr != nil {
		return scanErr
	}
	for _, adv := range advs {
		h(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeScanDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

func (d *fakeScanDevice) Scans() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scans
}

type gapRecorder struct {
	mu          sync.Mutex
	paramStatus []device.Status
	startStatus []device.Status
	results     []device.RawScanResult
	completions int
	events      []string
}

func (g *gapRecorder) OnScanParamSetComplete(status device.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paramStatus = append(g.paramStatus, status)
	g.events = append(g.events, "params")
}

func (g *gapRecorder) OnScanStartComplete(status device.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startStatus = append(g.startStatus, status)
	g.events = append(g.events, "start")
}

func (g *gapRecorder) OnScanResult(result device.RawScanResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results = append(g.results, result)
	g.events = append(g.events, "result")
}

func (g *gapRecorder) OnScanComplete() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completions++
	g.events = append(g.events, "complete")
}

func (g *gapRecorder) Completions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completions
}

func (g *gapRecorder) Events() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.events...)
}

func (g *gapRecorder) StartStatus() []device.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]device.Status(nil), g.startStatus...)
}

type RadioTestSuite struct {
	suite.Suite

	helper   *testutils.TestHelper
	dev      *fakeScanDevice
	radio    *Radio
	recorder *gapRecorder
}

func (suite *RadioTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.dev = &fakeScanDevice{}
	suite.radio = newRadio(suite.dev, suite.helper.Logger)
	suite.recorder = &gapRecorder{}
	suite.radio.RegisterHandler(suite.recorder)
}

func (suite *RadioTestSuite) TearDownTest() {
	suite.NoError(suite.radio.Close())
}

func (suite *RadioTestSuite) waitCompletions(n int) {
	suite.Eventually(func() bool { return suite.recorder.Completions() >= n },
		2*time.Second, 5*time.Millisecond, "scan MUST complete")
}

func (suite *RadioTestSuite) TestSetScanParameters_RecordsAndReportsSuccess() {
	params := device.DefaultScanParameters()
	params.Type = device.ScanActive

	suite.Require().NoError(suite.radio.SetScanParameters(params))

	suite.Equal([]device.Status{device.StatusSuccess}, suite.recorder.paramStatus)
	suite.Equal(device.ScanActive, suite.radio.Params().Type)
}

func (suite *RadioTestSuite) TestStartScanning_EventOrder() {
	// GOAL: One scan yields start-complete, the results, then scan-complete
	//
	// TEST SCENARIO: two advertisements, 30ms scan → start, result, result, complete
	suite.dev.advs = []ble.Advertisement{
		&fakeAdvertisement{addr: "aa:bb:cc:dd:ee:01", name: "one", rssi: -40, txPower: txPowerUnknown},
		&fakeAdvertisement{addr: "aa:bb:cc:dd:ee:02", name: "two", rssi: -70, txPower: txPowerUnknown},
	}

	suite.Require().NoError(suite.radio.StartScanning(30 * time.Millisecond))
	suite.waitCompletions(1)

	suite.Equal([]string{"start", "result", "result", "complete"}, suite.recorder.Events())
	suite.Equal([]device.Status{device.StatusSuccess}, suite.recorder.StartStatus())
	suite.Equal("AA:BB:CC:DD:EE:01", suite.recorder.results[0].Address.String())
	suite.Equal(-70, suite.recorder.results[1].RSSI)
}

func (suite *RadioTestSuite) TestStartScanning_SuccessWithoutAdvertisements() {
	suite.Require().NoError(suite.radio.StartScanning(StartGrace + 50*time.Millisecond))
	suite.waitCompletions(1)

	suite.Equal([]string{"start", "complete"}, suite.recorder.Events(),
		"start MUST be reported after the grace period even when nothing is heard")
}

func (suite *RadioTestSuite) TestStartScanning_BusyWhileRunning() {
	suite.Require().NoError(suite.radio.StartScanning(0))
	suite.Eventually(func() bool { return suite.dev.Scans() == 1 }, time.Second, 5*time.Millisecond)

	suite.Require().NoError(suite.radio.StartScanning(time.Second))

	suite.Contains(suite.recorder.StartStatus(), device.StatusBusy, "a second scan MUST be refused as busy")
	suite.Equal(1, suite.dev.Scans(), "the refused scan MUST NOT reach the device")
}

func (suite *RadioTestSuite) TestStartScanning_FailureReportsNormalisedStatus() {
	// GOAL: A controller that cannot scan reports a failed start and still ends the session on schedule
	suite.dev.scanErr = errors.New("can't init hci: no such device")

	began := time.Now()
	suite.Require().NoError(suite.radio.StartScanning(40 * time.Millisecond))
	suite.waitCompletions(1)

	suite.Equal([]device.Status{device.StatusNotReady}, suite.recorder.StartStatus())
	suite.GreaterOrEqual(time.Since(began), 40*time.Millisecond, "completion MUST wait for the scan duration")
	suite.NotEmpty(suite.helper.EntriesWithMessage("BLE scan aborted"))
}

func (suite *RadioTestSuite) TestStartScanning_CanRestartAfterCompletion() {
	suite.Require().NoError(suite.radio.StartScanning(10 * time.Millisecond))
	suite.waitCompletions(1)
	suite.Eventually(func() bool {
		suite.radio.mu.Lock()
		defer suite.radio.mu.Unlock()
		return !suite.radio.running
	}, time.Second, 5*time.Millisecond)

	suite.Require().NoError(suite.radio.StartScanning(10 * time.Millisecond))
	suite.waitCompletions(2)

	suite.Equal(2, suite.dev.Scans())
	suite.NotContains(suite.recorder.StartStatus(), device.StatusBusy)
}

func (suite *RadioTestSuite) TestClose_CancelsIndefiniteScan() {
	suite.Require().NoError(suite.radio.StartScanning(0))
	suite.Eventually(func() bool { return suite.dev.Scans() == 1 }, time.Second, 5*time.Millisecond)

	suite.Require().NoError(suite.radio.Close())

	suite.Equal(1, suite.recorder.Completions(), "Close MUST end the running scan")
	suite.True(suite.dev.stopped, "Close MUST stop the device")
	suite.ErrorIs(suite.radio.StartScanning(time.Second), ErrClosed)
	suite.ErrorIs(suite.radio.SetScanParameters(device.DefaultScanParameters()), ErrClosed)
}

func (suite *RadioTestSuite) TestRequiresHandler() {
	r := newRadio(&fakeScanDevice{}, suite.helper.Logger)
	defer r.Close()

	suite.Error(r.SetScanParameters(device.DefaultScanParameters()))
	suite.Error(r.StartScanning(time.Second))
}

// openRecorder opens fake devices and remembers the parameters of each open.
type openRecorder struct {
	opened []device.ScanParameters
	devs   []*fakeScanDevice
	err    error
}

func (o *openRecorder) open(params device.ScanParameters) (scanDevice, error) {
	o.opened = append(o.opened, params)
	if o.err != nil {
		return nil, o.err
	}
	dev := &fakeScanDevice{}
	o.devs = append(o.devs, dev)
	return dev, nil
}

func (suite *RadioTestSuite) TestSetScanParameters_ReopensOnTimingChange() {
	// GOAL: The device is opened once with the defaults and reopened only
	// when the scan timing changes
	//
	// TEST SCENARIO: defaults → no reopen; new window → old device stopped, new one opened; new duration only → no reopen
	opens := &openRecorder{}
	r, err := newRadioWithOpener(opens.open, suite.helper.Logger)
	suite.Require().NoError(err)
	defer r.Close()
	rec := &gapRecorder{}
	r.RegisterHandler(rec)

	params := device.DefaultScanParameters()
	suite.Require().NoError(r.SetScanParameters(params))
	suite.Len(opens.opened, 1, "unchanged timing MUST NOT reopen the device")

	params.Window = 0x0040
	suite.Require().NoError(r.SetScanParameters(params))
	suite.Require().Len(opens.opened, 2)
	suite.Equal(uint16(0x0040), opens.opened[1].Window)
	suite.True(opens.devs[0].stopped, "the previous device MUST be stopped before reopening")

	params.Duration = time.Minute
	suite.Require().NoError(r.SetScanParameters(params))
	suite.Len(opens.opened, 2, "the session duration is not part of the device timing")

	suite.Equal([]device.Status{device.StatusSuccess, device.StatusSuccess, device.StatusSuccess}, rec.paramStatus)
	suite.Equal(time.Minute, r.Params().Duration)
}

func (suite *RadioTestSuite) TestSetScanParameters_BusyWhileScanning() {
	opens := &openRecorder{}
	r, err := newRadioWithOpener(opens.open, suite.helper.Logger)
	suite.Require().NoError(err)
	defer r.Close()
	rec := &gapRecorder{}
	r.RegisterHandler(rec)

	suite.Require().NoError(r.StartScanning(0))
	suite.Eventually(func() bool { return opens.devs[0].Scans() == 1 }, time.Second, 5*time.Millisecond)

	params := device.DefaultScanParameters()
	params.Type = device.ScanActive
	suite.Require().NoError(r.SetScanParameters(params))

	suite.Equal([]device.Status{device.StatusBusy}, rec.paramStatus, "timing MUST NOT change under a running scan")
	suite.Len(opens.opened, 1)
	suite.Equal(device.ScanParameters{}, r.Params(), "refused parameters MUST NOT be recorded")
}

func (suite *RadioTestSuite) TestSetScanParameters_ReopenFailure() {
	// GOAL: A failed reopen is reported through the GAP events and the next
	// session fails to start instead of scanning on a stale device
	opens := &openRecorder{}
	r, err := newRadioWithOpener(opens.open, suite.helper.Logger)
	suite.Require().NoError(err)
	defer r.Close()
	rec := &gapRecorder{}
	r.RegisterHandler(rec)

	opens.err = errors.New("operation not permitted")
	params := device.DefaultScanParameters()
	params.Interval = 0x00A0
	suite.Require().NoError(r.SetScanParameters(params))
	suite.Equal([]device.Status{device.StatusOf(device.ErrPermissionDenied)}, rec.paramStatus)

	suite.Require().NoError(r.StartScanning(20 * time.Millisecond))
	suite.Eventually(func() bool { return rec.Completions() == 1 }, time.Second, 5*time.Millisecond)
	suite.Equal([]device.Status{device.StatusNotReady}, rec.StartStatus())
	suite.NotEmpty(suite.helper.EntriesWithMessage("BLE device unavailable, waiting for the next session"))

	opens.err = nil
	suite.Require().NoError(r.SetScanParameters(params))
	suite.Len(opens.opened, 3, "a missing device MUST be reopened even with unchanged timing")
	suite.Equal(device.StatusSuccess, rec.paramStatus[len(rec.paramStatus)-1])
}

func TestNewRadioWithOpener_Error(t *testing.T) {
	_, err := newRadioWithOpener(func(device.ScanParameters) (scanDevice, error) {
		return nil, errors.New("can't init hci: no such device")
	}, nil)

	assert.ErrorIs(t, err, device.ErrBluetoothOff)
}

func TestRadioTestSuite(t *testing.T) {
	suite.Run(t, new(RadioTestSuite))
}

func TestToRawScanResult_UsesPlatformPayload(t *testing.T) {
	adv := testutils.NewPayloadBuilder().WithFlags(0x06).WithName("raw").Build()
	rsp := testutils.NewPayloadBuilder().WithManufacturerData(0x0059, 0x01).Build()
	in := &rawAdvertisement{
		fakeAdvertisement: fakeAdvertisement{addr: "11:22:33:44:55:66", name: "decoded", rssi: -55},
		data:              adv,
		scanRsp:           rsp,
		addrType:          1,
	}

	raw, err := toRawScanResult(in)

	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, adv...), rsp...), raw.Data(), "raw bytes MUST be passed through untouched")
	assert.Equal(t, uint8(len(adv)), raw.AdvDataLen)
	assert.Equal(t, uint8(len(rsp)), raw.ScanRspLen)
	assert.Equal(t, device.AddressRandom, raw.AddressType)
	assert.Equal(t, -55, raw.RSSI)
	assert.Equal(t, device.SearchInquiryResult, raw.SearchEvent)
}

func TestToRawScanResult_ReencodesDecodedFields(t *testing.T) {
	// GOAL: A platform that only exposes decoded fields still yields a payload the parser understands
	in := &fakeAdvertisement{
		addr:     "aa:bb:cc:dd:ee:ff",
		name:     "Thermo",
		rssi:     -62,
		txPower:  -8,
		services: []ble.UUID{ble.UUID16(0x181A), ble.UUID16(0x180F)},
		mfg:      []byte{0x59, 0x00, 0xDE, 0xAD},
		serviceData: []ble.ServiceData{
			{UUID: ble.UUID16(0xFEAA), Data: []byte{0x10, 0x20}},
		},
	}

	raw, err := toRawScanResult(in)

	require.NoError(t, err)
	assert.Equal(t, device.AddressPublic, raw.AddressType)

	dev := device.NewParser(testutils.NewTestHelper(t).Logger).Parse(raw)
	assert.Equal(t, "Thermo", dev.Name())
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", dev.AddressString())
	assert.True(t, dev.HasServiceUUID(device.UUIDFrom16(0x181A)))
	assert.True(t, dev.HasServiceUUID(device.UUIDFrom16(0x180F)))
	assert.Len(t, dev.TxPowers(), 1, "one TX power record MUST be encoded")

	md := dev.ManufacturerData()
	require.Len(t, md, 1)
	assert.True(t, md[0].UUID.Equal(device.UUIDFrom16(0x0059)))
	assert.Equal(t, []byte{0xDE, 0xAD}, md[0].Data)

	sd := dev.ServiceData()
	require.Len(t, sd, 1)
	assert.True(t, sd[0].UUID.Equal(device.UUIDFrom16(0xFEAA)))
	assert.Equal(t, []byte{0x10, 0x20}, sd[0].Data)
}

func TestToRawScanResult_CoreBluetoothAddress(t *testing.T) {
	in := &fakeAdvertisement{addr: "5f0c8b2e-3d4a-4c6e-9a1b-0a1b2c3d4e5f", rssi: -80, txPower: txPowerUnknown}

	raw, err := toRawScanResult(in)

	require.NoError(t, err)
	assert.Equal(t, "0A:1B:2C:3D:4E:5F", raw.Address.String(), "the last six UUID bytes MUST stand in for the address")
	assert.Equal(t, device.AddressRandom, raw.AddressType)

	_, err = toRawScanResult(&fakeAdvertisement{addr: "not an address"})
	assert.Error(t, err)
}

func TestSplitRecords_PacksWholeRecords(t *testing.T) {
	name := device.AppendRecord(nil, device.ADCompleteName, make([]byte, 20))
	mfg := device.AppendRecord(nil, device.ADManufacturerSpecific, make([]byte, 20))
	small := device.AppendRecord(nil, device.ADTxPower, []byte{0x04})
	huge := device.AppendRecord(nil, device.ADServiceData128, make([]byte, 40))

	adv, rsp := splitRecords([][]byte{name, mfg, small, huge})

	assert.Equal(t, append(append([]byte{}, name...), small...), adv, "records that fit MUST stay in the advertising data")
	assert.Equal(t, mfg, rsp, "the overflow record MUST move to the scan response")
	assert.LessOrEqual(t, len(adv), device.MaxAdvDataLen)
	assert.LessOrEqual(t, len(rsp), device.MaxAdvDataLen)
}
