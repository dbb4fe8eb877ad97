package v4l2

// commonResolutions are offered for devices with stepwise or continuous
// frame sizes.
var commonResolutions = [][2]uint32{
	{320, 240},  // QVGA
	{640, 480},  // VGA
	{800, 600},  // SVGA
	{1024, 768}, // XGA
	{1280, 720}, // HD
	{1280, 960},
	{1280, 1024}, // SXGA
	{1920, 1080}, // Full HD
	{1920, 1200}, // WUXGA
	{2560, 1440}, // QHD
	{3840, 2160}, // 4K UHD
	{4096, 2160}, // 4K DCI
}

// stepwiseResolutions returns the common resolutions inside a stepwise range.
func stepwiseResolutions(minWidth, maxWidth, minHeight, maxHeight uint32) []Resolution {
	var resolutions []Resolution
	for _, res := range commonResolutions {
		w, h := res[0], res[1]
		if w >= minWidth && w <= maxWidth &&
			h >= minHeight && h <= maxHeight {
			resolutions = append(resolutions, Resolution{Width: w, Height: h})
		}
	}
	return resolutions
}

// commonFramerates returns frame intervals offered for stepwise or continuous
// interval ranges, fastest first.
func commonFramerates() []Framerate {
	return []Framerate{
		{1, 60},
		{1, 50},
		{1, 30},
		{1, 25},
		{1, 20},
		{1, 15},
		{1, 10},
		{1, 5},
	}
}
