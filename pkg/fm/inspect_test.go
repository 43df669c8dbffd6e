package fm_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/logandonley/fontreg/pkg/fm"
)

var _ = Describe("Inspect", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "inspect-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	It("should read the naming and outline information of a TrueType font", func() {
		path := filepath.Join(tempDir, "Go-Regular.ttf")
		Expect(os.WriteFile(path, goregular.TTF, 0644)).To(Succeed())

		info, err := fm.Inspect(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Family).To(HavePrefix("Go"))
		Expect(info.Outlines).To(Equal("TrueType"))
		Expect(info.Italic).To(BeFalse())
		Expect(info.UnitsPerEm).To(BeNumerically(">", 0))
		Expect(info.NumGlyphs).To(BeNumerically(">", 0))
	})

	It("should reject formats without SFNT metadata", func() {
		_, err := fm.Inspect(writeFont(tempDir, "Old.fon"))
		Expect(fm.KindOf(err)).To(Equal(fm.KindUnsupportedFormat))
	})

	It("should reject files that are not fonts", func() {
		_, err := fm.Inspect(writeFont(tempDir, "Fake.ttf"))
		Expect(fm.KindOf(err)).To(Equal(fm.KindUnsupportedFormat))
	})
})
