package fm_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/logandonley/fontreg/internal/metrics"
	"github.com/logandonley/fontreg/pkg/fm"
)

var _ = Describe("Installer", func() {
	var (
		tempDir   string
		srcDir    string
		userDir   string
		mock      *mockPlatform
		installer *fm.Installer
		fast      = fm.RetryPolicy{Attempts: 2}
	)

	newInstaller := func(scope fm.Scope, opts ...fm.Option) *fm.Installer {
		opts = append([]fm.Option{
			fm.WithLogger(testLogger()),
			fm.WithCopyPolicy(fast),
			fm.WithDeletePolicy(fast),
		}, opts...)
		i, err := fm.NewInstaller(mock, scope, opts...)
		Expect(err).NotTo(HaveOccurred())
		return i
	}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "font-test-*")
		Expect(err).NotTo(HaveOccurred())
		srcDir = filepath.Join(tempDir, "src")
		userDir = filepath.Join(tempDir, "user")

		mock = newMockPlatform(tempDir)
		installer = newInstaller(fm.ScopeUser)
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Installing fonts", func() {
		It("should copy, register and record the font", func() {
			src := writeFont(srcDir, "Foo.ttf")

			res, err := installer.Install(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeInstalled))
			Expect(res.Identification).To(Equal(&fm.FontIdentification{
				FontPath:          filepath.Join(userDir, "Foo.ttf"),
				FontExtension:     ".ttf",
				RegistryValueName: "Foo",
				RegistryRawValue:  filepath.Join(userDir, "Foo.ttf"),
			}))

			Expect(filepath.Join(userDir, "Foo.ttf")).To(BeAnExistingFile())
			Expect(mock.added).To(ConsistOf(src))
			Expect(mock.notified).To(Equal(1))
			Expect(dirNames(userDir)).To(ConsistOf("Foo.ttf"))
		})

		It("should succeed without changes when the font is already installed", func() {
			src := writeFont(srcDir, "Foo.ttf")

			first, err := installer.Install(src)
			Expect(err).NotTo(HaveOccurred())
			store := mock.storeFile(fm.ScopeUser)

			second, err := installer.Install(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Outcome).To(Equal(fm.OutcomeAlreadyInstalled))
			Expect(second.Succeeded()).To(BeTrue())
			Expect(second.Identification).To(Equal(first.Identification))

			Expect(mock.storeFile(fm.ScopeUser)).To(Equal(store))
			Expect(dirNames(userDir)).To(ConsistOf("Foo.ttf"))
			Expect(mock.added).To(HaveLen(1))
		})

		It("should not mistake a font of another type for the one being installed", func() {
			_, err := installer.Install(writeFont(srcDir, "Foo.otf"))
			Expect(err).NotTo(HaveOccurred())

			res, err := installer.Install(writeFont(srcDir, "Foo.ttf"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeInstalled))
			Expect(dirNames(userDir)).To(ConsistOf("Foo.otf", "Foo.ttf"))
		})

		It("should lower-case the extension of the installed copy", func() {
			src := writeFont(srcDir, "Bar.TTF")

			res, err := installer.Install(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Identification.FontPath).To(Equal(filepath.Join(userDir, "Bar.ttf")))
			Expect(res.Identification.FontExtension).To(Equal(".ttf"))
		})

		It("should report missing files as not found", func() {
			res, err := installer.Install(filepath.Join(srcDir, "Missing.ttf"))
			Expect(errors.Is(err, fm.ErrNotFound)).To(BeTrue())
			Expect(res.Outcome).To(Equal(fm.OutcomeFailed))
			Expect(mock.storeFile(fm.ScopeUser)).To(BeEmpty())
		})

		It("should reject unsupported file types", func() {
			_, err := installer.Install(writeFont(srcDir, "Foo.woff2"))
			Expect(fm.KindOf(err)).To(Equal(fm.KindUnsupportedFormat))
			Expect(dirNames(userDir)).To(BeEmpty())
		})

		It("should reject paths longer than the platform limit", func() {
			installer = newInstaller(fm.ScopeUser, fm.WithMaxPathLength(10))

			res, err := installer.Install(writeFont(srcDir, "Foo.ttf"))
			Expect(errors.Is(err, fm.ErrPathTooLong)).To(BeTrue())
			Expect(res.Identification).NotTo(BeNil())
			Expect(dirNames(userDir)).To(BeEmpty())
			Expect(mock.added).To(BeEmpty())
		})

		It("should not record fonts the OS refused to register", func() {
			mock.addErr = errors.New("simulated failure")

			_, err := installer.Install(writeFont(srcDir, "Foo.ttf"))
			Expect(fm.KindOf(err)).To(Equal(fm.KindRegistrationFailure))
			Expect(err.Error()).To(ContainSubstring("errorcode 2"))

			id, err := installer.Identify("Foo")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(BeNil())
		})

		It("should refuse a display name already taken by another font", func() {
			_, err := installer.Install(writeFont(srcDir, "Foo.ttf"))
			Expect(err).NotTo(HaveOccurred())

			_, err = installer.Install(writeFont(srcDir, "Foo.fnt"))
			Expect(errors.Is(err, fm.ErrAmbiguousMatch)).To(BeTrue())
			Expect(dirNames(userDir)).To(ConsistOf("Foo.ttf"))
		})

		It("should count transitions when metrics are enabled", func() {
			m := metrics.New()
			installer = newInstaller(fm.ScopeUser, fm.WithMetrics(m))
			src := writeFont(srcDir, "Foo.ttf")

			_, err := installer.Install(src)
			Expect(err).NotTo(HaveOccurred())
			_, err = installer.Install(src)
			Expect(err).NotTo(HaveOccurred())

			families, err := m.Gatherer().Gather()
			Expect(err).NotTo(HaveOccurred())
			Expect(families).To(HaveLen(1))
			Expect(families[0].GetName()).To(Equal("fontreg_transitions_total"))
			Expect(families[0].GetMetric()).To(HaveLen(2))
		})

		It("should install fonts whose file name starts with a dot", func() {
			res, err := installer.Install(writeFont(srcDir, ".Hidden.ttf"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Identification.FontPath).To(Equal(filepath.Join(userDir, ".Hidden.ttf")))
			Expect(res.Identification.RegistryValueName).To(Equal(".Hidden"))
			Expect(dirNames(userDir)).To(ConsistOf(".Hidden.ttf"))
		})

		It("should not overwrite a file already in the managed directory", func() {
			existing := writeFont(userDir, "Foo.ttf")
			before, err := os.ReadFile(existing)
			Expect(err).NotTo(HaveOccurred())

			res, err := installer.Install(writeFont(srcDir, "Foo.ttf"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeInstalled))

			after, err := os.ReadFile(existing)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})

		It("should give up copying once the retries are used up", func() {
			m := metrics.New()
			installer = newInstaller(fm.ScopeUser, fm.WithMetrics(m))
			Expect(os.RemoveAll(userDir)).To(Succeed())
			Expect(os.WriteFile(userDir, []byte("not a directory"), 0644)).To(Succeed())

			res, err := installer.Install(writeFont(srcDir, "Foo.ttf"))
			Expect(errors.Is(err, fm.ErrCopyFailure)).To(BeTrue())
			Expect(res.Outcome).To(Equal(fm.OutcomeFailed))
			Expect(mock.added).To(BeEmpty())

			fonts, err := installer.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(fonts).To(BeEmpty())

			// two attempts, one retry
			Expect(testutil.ToFloat64(m.RetryAttempts.WithLabelValues("copy"))).To(Equal(1.0))
		})
	})

	Describe("Uninstalling fonts", func() {
		It("should follow the install and uninstall scenario end to end", func() {
			src := writeFont(srcDir, "Foo.ttf")

			first, err := installer.Install(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Identification.RegistryValueName).To(Equal("Foo"))

			again, err := installer.Install(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Identification).To(Equal(first.Identification))

			res, err := installer.Uninstall("Foo")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeUninstalled))
			Expect(filepath.Join(userDir, "Foo.ttf")).NotTo(BeAnExistingFile())
			Expect(mock.removed).To(ConsistOf(filepath.Join(userDir, "Foo.ttf")))

			fonts, err := installer.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(fonts).To(BeEmpty())

			res, err = installer.Uninstall("Foo")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeNotFound))
			Expect(res.Succeeded()).To(BeFalse())
		})

		DescribeTable("should round trip every supported extension",
			func(ext, displayName string) {
				src := writeFont(srcDir, "sample"+ext)

				res, err := installer.Install(src)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Identification.RegistryValueName).To(Equal(displayName))
				Expect(dirNames(userDir)).To(ConsistOf("sample" + ext))

				res, err = installer.Uninstall("sample" + ext)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Outcome).To(Equal(fm.OutcomeUninstalled))
				Expect(dirNames(userDir)).To(BeEmpty())

				fonts, err := installer.List()
				Expect(err).NotTo(HaveOccurred())
				Expect(fonts).To(BeEmpty())
				Expect(src).To(BeAnExistingFile())
			},
			Entry("TrueType", ".ttf", "Sample"),
			Entry("OpenType", ".otf", "Sample (OpenType)"),
			Entry("bitmap", ".fon", "Sample (VGA res)"),
			Entry("TrueType collection", ".ttc", "Sample (TrueType)"),
			Entry("raw bitmap", ".fnt", "Sample"),
		)

		Context("with any identifier form", func() {
			var (
				name      string
				installed string
			)

			BeforeEach(func() {
				name = "TestFont_" + uuid.NewString()
				res, err := installer.Install(writeFont(srcDir, name+".otf"))
				Expect(err).NotTo(HaveOccurred())
				installed = res.Identification.FontPath
				Expect(installed).To(Equal(filepath.Join(userDir, name+".otf")))
			})

			DescribeTable("should identify and uninstall the font",
				func(form func() string) {
					id, err := installer.Identify(form())
					Expect(err).NotTo(HaveOccurred())
					Expect(id).NotTo(BeNil())
					Expect(id.FontPath).To(Equal(installed))
					Expect(id.RegistryValueName).To(Equal(name + " (OpenType)"))

					res, err := installer.Uninstall(form())
					Expect(err).NotTo(HaveOccurred())
					Expect(res.Outcome).To(Equal(fm.OutcomeUninstalled))
					Expect(installed).NotTo(BeAnExistingFile())

					id, err = installer.Identify(name)
					Expect(err).NotTo(HaveOccurred())
					Expect(id).To(BeNil())
				},
				Entry("by absolute path", func() string { return installed }),
				Entry("by file name", func() string { return name + ".otf" }),
				Entry("by name without extension", func() string { return name }),
				Entry("by display name", func() string { return name + " (OpenType)" }),
				Entry("by file name with upper-case extension", func() string { return name + ".OTF" }),
				Entry("by relative path", func() string {
					wd, err := os.Getwd()
					Expect(err).NotTo(HaveOccurred())
					rel, err := filepath.Rel(wd, installed)
					Expect(err).NotTo(HaveOccurred())
					return rel
				}),
			)
		})

		It("should keep the file of a font installed by reference", func() {
			external := writeFont(filepath.Join(tempDir, "external"), "Ext.ttf")

			res, err := installer.InstallByReference(external)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Identification.FontPath).To(Equal(external))
			Expect(res.Identification.RegistryRawValue).To(Equal(external))
			Expect(dirNames(userDir)).To(BeEmpty())

			res, err = installer.Uninstall("Ext")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeUninstalled))
			Expect(external).To(BeAnExistingFile())

			fonts, err := installer.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(fonts).To(BeEmpty())
		})

		It("should match an unregistered path by its file name only", func() {
			src := writeFont(srcDir, "Foo.ttf")
			_, err := installer.Install(src)
			Expect(err).NotTo(HaveOccurred())

			res, err := installer.Uninstall(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeUninstalled))
			Expect(src).To(BeAnExistingFile())
			Expect(dirNames(userDir)).To(BeEmpty())
		})

		It("should refuse to guess between extensions of the same name", func() {
			writeFont(userDir, "Name.ttf")
			writeFont(userDir, "Name.otf")

			_, err := installer.Uninstall("Name")
			Expect(errors.Is(err, fm.ErrAmbiguousMatch)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(".ttf"))
			Expect(err.Error()).To(ContainSubstring(".otf"))
			Expect(dirNames(userDir)).To(ConsistOf("Name.ttf", "Name.otf"))
		})

		It("should delete unregistered files from the managed directory", func() {
			orphan := writeFont(userDir, "Orphan.ttf")

			res, err := installer.Uninstall("Orphan.ttf")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeUninstalled))
			Expect(orphan).NotTo(BeAnExistingFile())
		})

		It("should leave unregistered files alone without orphan cleanup", func() {
			installer = newInstaller(fm.ScopeUser, fm.WithOrphanCleanup(false))
			orphan := writeFont(userDir, "Orphan.ttf")

			res, err := installer.Uninstall("Orphan")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeNotFound))
			Expect(orphan).To(BeAnExistingFile())
		})

		It("should treat a font file that is already gone as deleted", func() {
			res, err := installer.Install(writeFont(srcDir, "Foo.ttf"))
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Remove(res.Identification.FontPath)).To(Succeed())

			res, err = installer.Uninstall("Foo.ttf")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeUninstalled))

			fonts, err := installer.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(fonts).To(BeEmpty())
		})
		It("should give up deleting once the retries are used up", func() {
			if runtime.GOOS == "windows" || os.Geteuid() == 0 {
				Skip("directory permissions are not enforced")
			}
			res, err := installer.Install(writeFont(srcDir, "Foo.ttf"))
			Expect(err).NotTo(HaveOccurred())

			Expect(os.Chmod(userDir, 0555)).To(Succeed())
			_, err = installer.Uninstall("Foo")
			Expect(os.Chmod(userDir, 0755)).To(Succeed())

			Expect(errors.Is(err, fm.ErrDeleteFailure)).To(BeTrue())
			Expect(res.Identification.FontPath).To(BeAnExistingFile())
		})

		It("should find unregistered files with an upper-case extension", func() {
			orphan := writeFont(userDir, "Name.TTF")

			res, err := installer.Uninstall("Name")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeUninstalled))
			Expect(orphan).NotTo(BeAnExistingFile())
		})

		It("should count upper-case extensions when refusing to guess", func() {
			writeFont(userDir, "Name.TTF")
			writeFont(userDir, "Name.otf")

			_, err := installer.Uninstall("Name")
			Expect(errors.Is(err, fm.ErrAmbiguousMatch)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(".TTF"))
			Expect(dirNames(userDir)).To(ConsistOf("Name.TTF", "Name.otf"))
		})
	})

	Describe("Identifying fonts", func() {
		setValues := func(values ...string) {
			store, err := mock.OpenStore(fm.ScopeUser, true)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < len(values); i += 2 {
				Expect(store.SetValue(values[i], values[i+1])).To(Succeed())
			}
			Expect(store.Close()).To(Succeed())
		}

		It("should refuse to guess between decorated display names", func() {
			setValues("Foo (OpenType)", "Foo.otf", "Foo (TrueType)", "Foo.ttc")

			_, err := installer.Identify("Foo")
			Expect(errors.Is(err, fm.ErrAmbiguousMatch)).To(BeTrue())

			id, err := installer.Identify("Foo (OpenType)")
			Expect(err).NotTo(HaveOccurred())
			Expect(id.FontPath).To(Equal(filepath.Join(userDir, "Foo.otf")))
		})

		It("should refuse to guess between entries for the same file", func() {
			setValues("Foo", "Foo.ttf", "Foo Regular", filepath.Join(userDir, "Foo.ttf"))

			_, err := installer.Identify("Foo.ttf")
			Expect(errors.Is(err, fm.ErrAmbiguousMatch)).To(BeTrue())

			_, err = installer.Uninstall("Foo.ttf")
			Expect(errors.Is(err, fm.ErrAmbiguousMatch)).To(BeTrue())
		})
	})

	Describe("Scopes", func() {
		It("should require privilege for the machine scope", func() {
			_, err := fm.NewInstaller(mock, fm.ScopeMachine)
			Expect(errors.Is(err, fm.ErrInsufficientPrivilege)).To(BeTrue())
			Expect(fm.IsFatal(err)).To(BeTrue())
		})

		It("should keep user and machine fonts apart", func() {
			mock.privileged = true
			machine := newInstaller(fm.ScopeMachine)
			Expect(machine.Directory()).To(Equal(filepath.Join(tempDir, "system")))

			_, err := installer.Install(writeFont(srcDir, "Foo.ttf"))
			Expect(err).NotTo(HaveOccurred())

			id, err := machine.Identify("Foo")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(BeNil())
			Expect(mock.storeFile(fm.ScopeMachine)).To(BeEmpty())
			Expect(dirNames(machine.Directory())).To(BeEmpty())

			res, err := machine.Uninstall("Foo")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(fm.OutcomeNotFound))

			id, err = installer.Identify("Foo")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).NotTo(BeNil())
		})
	})

	Describe("Store failures", func() {
		It("should report an unavailable store as fatal", func() {
			mock.storeErr = errors.New("access denied")

			_, err := installer.Install(writeFont(srcDir, "Foo.ttf"))
			Expect(errors.Is(err, fm.ErrStoreAccessFailure)).To(BeTrue())
			Expect(fm.IsFatal(err)).To(BeTrue())
			Expect(strings.Contains(err.Error(), "access denied")).To(BeTrue())
		})
	})
})
