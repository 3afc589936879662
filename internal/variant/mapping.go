package variant

import "fmt"

// MaxImages is the number of image slots a shader can use
const MaxImages = 32

const invalidSlot = 0xff

// ImageMapping assigns texture slots to images read through the texture
// path. Slots are handed out in first-use order starting after the
// shader's own textures.
type ImageMapping struct {
	imageToTex [MaxImages]uint8
	texToImage [MaxImages]uint8
	numTex     int
	// TexBase is the first texture slot used for images
	TexBase int
}

// Init clears the mapping. Image slots start at numTextures.
func (m *ImageMapping) Init(numTextures int) {
	for i := range m.imageToTex {
		m.imageToTex[i] = invalidSlot
		m.texToImage[i] = invalidSlot
	}
	m.numTex = 0
	m.TexBase = numTextures
}

// ImageToTex returns the texture slot of image, assigning one on first use
func (m *ImageMapping) ImageToTex(image int) (int, error) {
	if image < 0 || image >= MaxImages {
		return 0, fmt.Errorf("image %d out of range [0, %d)", image, MaxImages)
	}
	if m.imageToTex[image] == invalidSlot {
		if m.numTex >= MaxImages {
			return 0, fmt.Errorf("out of texture slots for image %d", image)
		}
		tex := m.numTex
		m.numTex++
		m.imageToTex[image] = uint8(tex)
		m.texToImage[tex] = uint8(image)
	}
	return int(m.imageToTex[image]) + m.TexBase, nil
}

// TexToImage maps a slot relative to TexBase back to its image
func (m *ImageMapping) TexToImage(tex int) (int, bool) {
	if tex < 0 || tex >= MaxImages || m.texToImage[tex] == invalidSlot {
		return 0, false
	}
	return int(m.texToImage[tex]), true
}

// NumTex returns the number of slots assigned so far
func (m *ImageMapping) NumTex() int { return m.numTex }
