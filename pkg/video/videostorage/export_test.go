package videostorage

import "github.com/tauraamui/dragondelay/pkg/video/videoframe"

func ConvertFramesToBlob(frames []videoframe.NoCloser) ([]byte, error) {
	return convertFramesToBlob(frames)
}
