package replay_test

import (
	"sync"
	"testing"
	"time"

	"github.com/srg/bletrack/internal/device"
	"github.com/srg/bletrack/internal/device/replay"
	"github.com/srg/bletrack/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type eventLog struct {
	mu      sync.Mutex
	events  []string
	results []device.RawScanResult
	starts  []device.Status
	params  []device.Status
}

func (l *eventLog) OnScanParamSetComplete(status device.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params = append(l.params, status)
	l.events = append(l.events, "params")
}

func (l *eventLog) OnScanStartComplete(status device.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, status)
	l.events = append(l.events, "start")
}

func (l *eventLog) OnScanResult(result device.RawScanResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
	l.events = append(l.events, "result")
}

func (l *eventLog) OnScanComplete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "complete")
}

func (l *eventLog) count(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) snapshot() ([]string, []device.RawScanResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...), append([]device.RawScanResult(nil), l.results...)
}

type ReplayTestSuite struct {
	suite.Suite

	helper  *testutils.TestHelper
	capture *replay.Capture
	log     *eventLog
}

func (suite *ReplayTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	capture, err := replay.LoadCapture("testdata/living_room.yaml")
	suite.Require().NoError(err)
	suite.capture = capture
	suite.log = &eventLog{}
}

func (suite *ReplayTestSuite) newRadio(opts ...replay.Option) *replay.Radio {
	radio, err := replay.NewRadio(suite.capture, suite.helper.Logger, opts...)
	suite.Require().NoError(err)
	radio.RegisterHandler(suite.log)
	suite.T().Cleanup(func() { _ = radio.Close() })
	return radio
}

func (suite *ReplayTestSuite) TestLoadCapture() {
	suite.Equal("living-room", suite.capture.Name)
	suite.Require().Len(suite.capture.Advertisements, 4)
	suite.Equal(5*time.Millisecond, suite.capture.Advertisements[1].Delay)
	suite.Equal("random", suite.capture.Advertisements[1].AddressType)
}

func (suite *ReplayTestSuite) TestSession_ReplaysCaptureInOrder() {
	// GOAL: A session delivers every entry in capture order between start and complete
	radio := suite.newRadio()

	suite.Require().NoError(radio.SetScanParameters(device.DefaultScanParameters()))
	suite.Require().NoError(radio.StartScanning(time.Second))
	suite.Eventually(func() bool { return suite.log.count("complete") == 1 }, 2*time.Second, 5*time.Millisecond)

	events, results := suite.log.snapshot()
	suite.Equal([]string{"params", "start", "result", "result", "result", "result", "complete"}, events)
	suite.Require().Len(results, 4)
	suite.Equal("A4:C1:38:11:22:33", results[0].Address.String())
	suite.Equal(device.AddressRandom, results[1].AddressType)
	suite.Equal(-80, results[2].RSSI)
	suite.Equal(uint8(10), results[2].ScanRspLen, "the scan response MUST follow the advertising data")
	suite.Equal(1, radio.Sessions())
}

func (suite *ReplayTestSuite) TestSession_PayloadDecodes() {
	radio := suite.newRadio()
	suite.Require().NoError(radio.StartScanning(time.Second))
	suite.Eventually(func() bool { return suite.log.count("complete") == 1 }, 2*time.Second, 5*time.Millisecond)

	_, results := suite.log.snapshot()
	parser := device.NewParser(suite.helper.Logger)

	thermo := parser.Parse(results[0])
	suite.Equal("Thermo1", thermo.Name())
	suite.True(thermo.HasServiceUUID(device.UUIDFrom16(0x181A)))

	beacon := parser.Parse(results[1])
	md := beacon.ManufacturerData()
	suite.Require().Len(md, 1)
	ib, ok := device.IBeaconFromManufacturerData(md[0])
	suite.Require().True(ok, "the capture MUST contain a valid iBeacon")
	suite.Equal(uint16(1), ib.Major)
	suite.Equal(uint16(2), ib.Minor)

	mijia := parser.Parse(results[2])
	suite.Equal("MJ_HT_V1", mijia.Name(), "name from the scan response MUST be decoded")
	suite.Require().Len(mijia.ServiceData(), 1)
}

func (suite *ReplayTestSuite) TestSession_DurationCutsReplayShort() {
	capture := &replay.Capture{Advertisements: []replay.Entry{
		{Address: "11:22:33:44:55:66", Adv: "020106"},
		{Address: "11:22:33:44:55:67", Adv: "020106", Delay: time.Hour},
	}}
	radio, err := replay.NewRadio(capture, suite.helper.Logger)
	suite.Require().NoError(err)
	radio.RegisterHandler(suite.log)
	defer radio.Close()

	suite.Require().NoError(radio.StartScanning(20 * time.Millisecond))
	suite.Eventually(func() bool { return suite.log.count("complete") == 1 }, time.Second, 5*time.Millisecond)

	suite.Equal(1, suite.log.count("result"), "entries past the deadline MUST NOT be delivered")
}

func (suite *ReplayTestSuite) TestBusyWhileRunning() {
	capture := &replay.Capture{Advertisements: []replay.Entry{{Address: "11:22:33:44:55:66", Adv: "020106", Delay: time.Hour}}}
	slow, err := replay.NewRadio(capture, suite.helper.Logger)
	suite.Require().NoError(err)
	slow.RegisterHandler(suite.log)
	defer slow.Close()

	suite.Require().NoError(slow.StartScanning(0))
	suite.Require().NoError(slow.StartScanning(0))

	suite.Eventually(func() bool {
		suite.log.mu.Lock()
		defer suite.log.mu.Unlock()
		return len(suite.log.starts) == 2
	}, time.Second, 5*time.Millisecond)
	suite.Contains(suite.log.starts, device.StatusBusy)
	suite.Equal(1, slow.Sessions())
}

func (suite *ReplayTestSuite) TestStalledEndNeverCompletes() {
	radio := suite.newRadio(replay.WithStalledEnd())

	suite.Require().NoError(radio.StartScanning(time.Second))
	suite.Eventually(func() bool { return suite.log.count("result") == 4 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	suite.Zero(suite.log.count("complete"), "a stalled radio MUST NOT signal the end of the session")
}

func (suite *ReplayTestSuite) TestFailureStatuses() {
	radio := suite.newRadio(
		replay.WithParamStatus(device.StatusParamInvalid),
		replay.WithStartStatus(device.StatusBusy),
	)

	suite.Require().NoError(radio.SetScanParameters(device.DefaultScanParameters()))
	suite.Require().NoError(radio.StartScanning(10 * time.Millisecond))
	suite.Eventually(func() bool { return suite.log.count("complete") == 1 }, time.Second, 5*time.Millisecond)

	suite.Equal([]device.Status{device.StatusParamInvalid}, suite.log.params)
	suite.Equal([]device.Status{device.StatusBusy}, suite.log.starts)
	suite.Zero(suite.log.count("result"), "a failed start MUST NOT deliver results")
}

func (suite *ReplayTestSuite) TestClosedRadioRefusesRequests() {
	radio := suite.newRadio()
	suite.Require().NoError(radio.Close())

	suite.ErrorIs(radio.StartScanning(time.Second), replay.ErrClosed)
	suite.ErrorIs(radio.SetScanParameters(device.DefaultScanParameters()), replay.ErrClosed)
}

func (suite *ReplayTestSuite) TestParseCapture_Rejects() {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad address", "advertisements:\n  - address: nope\n    adv: '020106'\n"},
		{"bad address type", "advertisements:\n  - address: '11:22:33:44:55:66'\n    address_type: static\n    adv: '020106'\n"},
		{"bad hex", "advertisements:\n  - address: '11:22:33:44:55:66'\n    adv: 'zz'\n"},
		{"oversized adv", "advertisements:\n  - address: '11:22:33:44:55:66'\n    adv: '" + repeatHex(32) + "'\n"},
		{"negative delay", "advertisements:\n  - address: '11:22:33:44:55:66'\n    adv: '020106'\n    delay: -1s\n"},
		{"not yaml", "advertisements: [\n"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := replay.ParseCapture([]byte(tt.yaml))
			suite.Error(err)
		})
	}
}

func repeatHex(n int) string {
	out := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, '0', '0')
	}
	return string(out)
}

func TestReplayTestSuite(t *testing.T) {
	suite.Run(t, new(ReplayTestSuite))
}
