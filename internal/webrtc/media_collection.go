package webrtc

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// MediaSink 渲染目标。每次有新轨道到达都会收到完整的轨道列表。
type MediaSink interface {
	BindTracks(streamID string, tracks []RemoteTrack)
}

// PacketSink 接收每个解出的RTP包，实现方不能阻塞
type PacketSink interface {
	WritePacket(streamID string, track RemoteTrack, packet *rtp.Packet)
}

type trackEntry struct {
	track    RemoteTrack
	kind     string
	packets  atomic.Uint64
	bytes    atomic.Uint64
	lastSeen atomic.Int64
}

// MediaCollection 一个会话收到的入站轨道集合，只增不减
type MediaCollection struct {
	streamID   string
	packetSink PacketSink
	observer   Observer
	logger     *logrus.Entry

	mutex  sync.RWMutex
	tracks []*trackEntry
	sink   MediaSink
	wg     sync.WaitGroup
}

func newMediaCollection(streamID string, packetSink PacketSink, observer Observer, logger *logrus.Entry) *MediaCollection {
	if observer == nil {
		observer = NopObserver{}
	}
	return &MediaCollection{
		streamID:   streamID,
		packetSink: packetSink,
		observer:   observer,
		logger:     logger,
	}
}

// Add 加入新轨道并开始读取RTP，返回当前轨道数
func (m *MediaCollection) Add(track RemoteTrack) int {
	entry := &trackEntry{track: track, kind: track.Kind().String()}

	m.mutex.Lock()
	m.tracks = append(m.tracks, entry)
	count := len(m.tracks)
	sink := m.sink
	m.mutex.Unlock()

	m.logger.Infof("Track added: kind=%s id=%s codec=%s (total %d)",
		entry.kind, track.ID(), track.Codec().MimeType, count)
	m.observer.TrackAdded(m.streamID, entry.kind)

	if sink != nil {
		sink.BindTracks(m.streamID, m.remoteTracks())
	}

	m.wg.Add(1)
	go m.drain(entry)
	return count
}

// Bind 绑定渲染目标，已有轨道立即交付
func (m *MediaCollection) Bind(sink MediaSink) {
	m.mutex.Lock()
	m.sink = sink
	m.mutex.Unlock()

	if sink != nil {
		sink.BindTracks(m.streamID, m.remoteTracks())
	}
}

// Len 轨道数量
func (m *MediaCollection) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.tracks)
}

// Tracks 返回轨道信息快照
func (m *MediaCollection) Tracks() []TrackInfo {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	infos := make([]TrackInfo, 0, len(m.tracks))
	for _, entry := range m.tracks {
		info := TrackInfo{
			ID:       entry.track.ID(),
			StreamID: entry.track.StreamID(),
			Kind:     entry.kind,
			Codec:    entry.track.Codec().MimeType,
			Packets:  entry.packets.Load(),
			Bytes:    entry.bytes.Load(),
		}
		if ts := entry.lastSeen.Load(); ts > 0 {
			info.LastSeen = time.Unix(0, ts)
		}
		infos = append(infos, info)
	}
	return infos
}

// Wait 等待所有读取goroutine退出，对等连接关闭后才会返回
func (m *MediaCollection) Wait() {
	m.wg.Wait()
}

func (m *MediaCollection) remoteTracks() []RemoteTrack {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	tracks := make([]RemoteTrack, 0, len(m.tracks))
	for _, entry := range m.tracks {
		tracks = append(tracks, entry.track)
	}
	return tracks
}

// drain 持续读取直到轨道结束
func (m *MediaCollection) drain(entry *trackEntry) {
	defer m.wg.Done()

	for {
		packet, _, err := entry.track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.logger.Debugf("Track %s read stopped: %v", entry.track.ID(), err)
			}
			return
		}

		size := packet.MarshalSize()
		entry.packets.Add(1)
		entry.bytes.Add(uint64(size))
		entry.lastSeen.Store(time.Now().UnixNano())
		m.observer.PacketReceived(m.streamID, entry.kind, size)

		if m.packetSink != nil {
			m.packetSink.WritePacket(m.streamID, entry.track, packet)
		}
	}
}
