package mysql

import "io"

// LocalInfileHandler opens the local file named by the server's LOAD DATA
// LOCAL INFILE request (§4.4). The returned ReadCloser is read to
// completion and closed by the caller.
type LocalInfileHandler func(name string) (io.ReadCloser, error)

// localInfileChunkSize bounds each packet sent while streaming file
// contents back to the server; kept well under the 16MB packet ceiling.
const localInfileChunkSize = 1 << 20

// handleLocalInfileRequest answers a 0xFB LOCAL INFILE request (§4.4): on
// a configured handler, the named file's contents are streamed as a
// sequence of packets followed by an empty terminator packet; with no
// handler, the terminator is sent immediately and the server is expected
// to reply with an ERR.
func (s *Session) handleLocalInfileRequest(pkt []byte) error {
	name := string(pkt[1:])

	if s.options.LocalInfileHandler == nil {
		return s.sendLocalInfileTerminator()
	}

	f, err := s.options.LocalInfileHandler(name)
	if err != nil {
		return s.sendLocalInfileTerminator()
	}
	defer f.Close()

	buf := make([]byte, localInfileChunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if err := s.t.writePacket(buf[:n]); err != nil {
				s.poison()
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return s.sendLocalInfileTerminator()
		}
	}
	return s.sendLocalInfileTerminator()
}

func (s *Session) sendLocalInfileTerminator() error {
	if err := s.t.writePacket(nil); err != nil {
		s.poison()
		return err
	}
	return nil
}
