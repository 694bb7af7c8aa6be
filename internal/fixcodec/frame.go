package fixcodec

import "bytes"

// FrameNext scans buf for the next complete message and returns it
// along with the number of leading bytes it consumes. If buf holds no
// complete message yet, it returns (nil, 0, nil) — callers keep
// appending bytes from the socket and try again. A buffer that doesn't
// begin with "8=" can never frame, and is reported as a malformed
// framing error so the caller can close the session.
func FrameNext(buf []byte) (frame []byte, consumed int, err error) {
	if len(buf) == 0 {
		return nil, 0, nil
	}
	if !bytes.HasPrefix(buf, []byte("8=")) {
		return nil, 0, newError(KindMalformedFraming, "buffer does not begin with 8=")
	}

	search := buf
	offset := 0
	for {
		idx := bytes.Index(search, []byte("10="))
		if idx < 0 {
			return nil, 0, nil
		}
		tagStart := offset + idx

		// "10=" must sit at a field boundary: either the start of the
		// buffer (impossible here, since buf begins with "8=") or right
		// after a SOH.
		if tagStart > 0 && buf[tagStart-1] != SOH {
			next := idx + len("10=")
			search = search[next:]
			offset += next
			continue
		}

		digitsStart := tagStart + len("10=")
		if digitsStart+3 >= len(buf) {
			// not enough bytes yet to know if this is a real checksum field
			return nil, 0, nil
		}
		if !isDigit(buf[digitsStart]) || !isDigit(buf[digitsStart+1]) || !isDigit(buf[digitsStart+2]) {
			next := idx + len("10=")
			search = search[next:]
			offset += next
			continue
		}
		sohPos := digitsStart + 3
		if buf[sohPos] != SOH {
			next := idx + len("10=")
			search = search[next:]
			offset += next
			continue
		}

		end := sohPos + 1
		return buf[:end], end, nil
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
