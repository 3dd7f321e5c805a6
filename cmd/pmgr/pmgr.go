// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jpillora/backoff"
	"github.com/mattn/go-isatty"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
	pm "github.com/platinasystems/pmgr"
	"github.com/platinasystems/pmgr/internal/devtree"
	"github.com/platinasystems/pmgr/internal/mmio"
	"github.com/platinasystems/pmgr/lang"
	"github.com/platinasystems/redis"
)

const (
	DefaultDtb = "/boot/linux.dtb"

	publishTries = 5
)

var (
	ErrUsage  = errors.New("usage")
	ErrParm   = errors.New("invalid parameter")
	ErrNoArgs = errors.New("missing domain")
)

type Command struct {
	C string

	// Tree and Bus replace the -dtb and -mem files.
	Tree *devtree.Tree
	Bus  mmio.Bus

	Stdout io.Writer

	// Hset stores -publish fields; nil waits for then uses the local
	// redis server.
	Hset func(key, field string, v interface{}) (int, error)
}

type options struct {
	flag *flags.Flags
	parm *parms.Parms
	die  uint8
	args []string
}

func (c *Command) String() string {
	if c.C == "" {
		return "pmgr"
	}
	return c.C
}

func (c *Command) Usage() string {
	return c.String() + ` [OPTION]... COMMAND [DOMAIN|REF]...`
}

func (c *Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "SoC clock and power domain manager",
	}
}

func (c *Command) Man() lang.Alt {
	return lang.Alt{
		lang.EnUS: `
DESCRIPTION
	Enable, disable, reset and inspect the clock and power domains
	described by the device tree's /arm-io/pmgr node.

COMMANDS
	list		print the domain catalog
	show DOMAIN...	print the register and state of each domain
	status		print the state of every domain on every die
	enable DOMAIN...
			enable each domain after its parents
	disable DOMAIN...
			power gate each domain, leaving its parents
	reset DOMAIN...	pulse the reset of each active domain
	feature NAME...	print integer properties of the pmgr node

	DOMAIN is a catalog name or a numeric reference with the die in
	bits 31:28 and the domain id in bits 15:0. Without a DOMAIN,
	enable, disable and reset use the clock-gates of -path.

OPTIONS
	-dtb FILE	flattened device tree (default: ` + DefaultDtb + `)
	-le		the device tree has little endian cells
	-mem FILE	physical memory device (default: ` + mmio.DevMemFile + `)
	-die N		die of named domains (default: 0)
	-variant NAME	register override table, e.g. t6041
	-path NODE	device tree node with a clock-gates list
	-index N	only the N'th entry of the clock-gates list
	-no-boot	skip reconciling boot time domain states
	-publish	store domain states in the redis default hash
	-q		quiet, don't print resulting states`,
	}
}

func (c *Command) Main(args ...string) error {
	flag, args := flags.New(args, "-publish", "-q", "-no-boot", "-le")
	parm, args := parms.New(args, "-dtb", "-mem", "-variant", "-die",
		"-path", "-index")
	if len(args) == 0 {
		return fmt.Errorf("%s: %w: %s", c, ErrUsage, c.Usage())
	}
	opt := &options{flag: flag, parm: parm, args: args[1:]}
	if s := parm.ByName["-die"]; len(s) > 0 {
		die, err := strconv.ParseUint(s, 0, 8)
		if err != nil || die > pm.RefMaxDie {
			return fmt.Errorf("%s: %w: -die %s", c, ErrParm, s)
		}
		opt.die = uint8(die)
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	var err error
	switch cmd := args[0]; cmd {
	case "feature":
		err = c.feature(opt)
	case "list", "show", "status", "enable", "disable", "reset":
		err = c.withManager(opt, cmd)
	default:
		err = fmt.Errorf("%w: %s: unknown command", ErrUsage, cmd)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	return nil
}

func (c *Command) tree(opt *options) (*devtree.Tree, error) {
	if c.Tree != nil {
		return c.Tree, nil
	}
	fn := opt.parm.ByName["-dtb"]
	if len(fn) == 0 {
		fn = DefaultDtb
	}
	return devtree.Load(fn, opt.flag.ByName["-le"])
}

func (c *Command) withManager(opt *options, cmd string) error {
	t, err := c.tree(opt)
	if err != nil {
		return err
	}
	bus := c.Bus
	if bus == nil {
		fn := opt.parm.ByName["-mem"]
		if len(fn) == 0 {
			fn = mmio.DevMemFile
		}
		mem, err := mmio.OpenDevMem(fn)
		if err != nil {
			return err
		}
		defer mem.Close()
		bus = mem
	}
	m, err := pm.Init(t, bus, pm.Config{
		Variant:  opt.parm.ByName["-variant"],
		SkipBoot: opt.flag.ByName["-no-boot"],
	})
	if err != nil {
		return err
	}
	switch cmd {
	case "list":
		return c.list(m)
	case "show":
		return c.show(m, opt)
	case "status":
		return c.status(m, opt)
	case "reset":
		return c.reset(m, opt)
	}
	return c.setMode(m, opt, cmd == "enable")
}

func (c *Command) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.Stdout, 0, 8, 1, ' ', 0)
}

// header is only written to terminals so that piped output is one record
// per line.
func (c *Command) header(w io.Writer, s string) {
	if f, ok := c.Stdout.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		fmt.Fprintln(w, s)
	}
}

func (c *Command) list(m *pm.Manager) error {
	cat := m.Catalog()
	w := c.table()
	c.header(w, "ID\tNAME\tPARENTS\tPS-REG\tOFFSET\tFLAGS")
	for i := range cat.Domains {
		d := &cat.Domains[i]
		attr := "-"
		if d.Virtual() {
			attr = "virtual"
		}
		fmt.Fprintf(w, "%d\t%s\t%d,%d\t%d\t%d\t%s\n", d.ID, d.Name,
			d.Parents[0], d.Parents[1], d.PSReg, d.AddrOffset, attr)
	}
	return w.Flush()
}

// domain looks up a DOMAIN argument, either a name on the -die die or a
// numeric reference.
func domain(m *pm.Manager, opt *options, arg string) (uint8, *pm.Domain,
	error) {
	if v, err := strconv.ParseUint(arg, 0, 32); err == nil {
		ref := pm.Ref(v)
		d, found := m.Catalog().ByID(ref.ID())
		if !found {
			return 0, nil, fmt.Errorf("%s: %w", ref, pm.ErrNoDomain)
		}
		return ref.Die(), d, nil
	}
	d, found := m.Catalog().ByName(arg)
	if !found {
		return 0, nil, fmt.Errorf("%s: %w", arg, pm.ErrNoDomain)
	}
	return opt.die, d, nil
}

func (c *Command) show(m *pm.Manager, opt *options) error {
	if len(opt.args) == 0 {
		return ErrNoArgs
	}
	w := c.table()
	c.header(w, "DOMAIN\tADDRESS\tREGISTER\tSTATE")
	var errs []error
	for _, arg := range opt.args {
		die, d, err := domain(m, opt, arg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if d.Virtual() {
			fmt.Fprintf(w, "%d.%s\t-\t-\tvirtual\n", die, d.Name)
			continue
		}
		addr, err := m.Addr(die, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s, err := m.Status(die, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "%d.%s\t%#x\t%#08x\t%s\n", die, d.Name, addr,
			s.Raw, s)
	}
	if err := w.Flush(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Command) status(m *pm.Manager, opt *options) error {
	cat := m.Catalog()
	w := c.table()
	c.header(w, "DOMAIN\tSTATE")
	var errs []error
	for die := 0; die < m.Dies(); die++ {
		for i := range cat.Domains {
			d := &cat.Domains[i]
			if d.Virtual() {
				continue
			}
			s, err := m.Status(uint8(die), d)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(w, "%d.%s\t%s\n", die, d.Name, s)
			if opt.flag.ByName["-publish"] {
				errs = append(errs, c.publish(uint8(die), d, s))
			}
		}
	}
	if err := w.Flush(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Command) setMode(m *pm.Manager, opt *options, enable bool) error {
	if len(opt.args) == 0 {
		return c.clockGates(opt, m, enable)
	}
	var errs []error
	for _, arg := range opt.args {
		die, d, err := domain(m, opt, arg)
		if err == nil {
			ref := pm.MakeRef(die, d.ID)
			if enable {
				err = m.PowerEnable(ref)
			} else {
				err = m.PowerDisable(ref)
			}
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, c.report(m, opt, die, d))
	}
	return errors.Join(errs...)
}

// clockGates enables or disables the -path node's clock-gates list or just
// its -index entry.
func (c *Command) clockGates(opt *options, m *pm.Manager, enable bool) error {
	path := opt.parm.ByName["-path"]
	if len(path) == 0 {
		return ErrNoArgs
	}
	s := opt.parm.ByName["-index"]
	if len(s) == 0 {
		if enable {
			return m.EnableAll(path)
		}
		return m.DisableAll(path)
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: -index %s", ErrParm, s)
	}
	if enable {
		return m.EnableIndex(path, i)
	}
	return m.DisableIndex(path, i)
}

func (c *Command) reset(m *pm.Manager, opt *options) error {
	if len(opt.args) == 0 {
		path := opt.parm.ByName["-path"]
		if len(path) == 0 {
			return ErrNoArgs
		}
		return m.ResetAll(path)
	}
	var errs []error
	for _, arg := range opt.args {
		die, d, err := domain(m, opt, arg)
		if err == nil {
			err = m.ResetDomain(int(die), d)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, c.report(m, opt, die, d))
	}
	return errors.Join(errs...)
}

// report prints and optionally publishes a domain state after an operation.
func (c *Command) report(m *pm.Manager, opt *options, die uint8,
	d *pm.Domain) error {
	if d.Virtual() {
		return nil
	}
	s, err := m.Status(die, d)
	if err != nil {
		return err
	}
	if !opt.flag.ByName["-q"] {
		fmt.Fprintf(c.Stdout, "%d.%s: %s\n", die, d.Name, s)
	}
	if opt.flag.ByName["-publish"] {
		return c.publish(die, d, s)
	}
	return nil
}

func (c *Command) feature(opt *options) error {
	if len(opt.args) == 0 {
		return ErrNoArgs
	}
	t, err := c.tree(opt)
	if err != nil {
		return err
	}
	for _, name := range opt.args {
		fmt.Fprintf(c.Stdout, "%s: %d\n", name, pm.Feature(t, name))
	}
	return nil
}

func (c *Command) publish(die uint8, d *pm.Domain, s pm.Status) error {
	hset := c.Hset
	if hset == nil {
		if err := redis.IsReady(); err != nil {
			return err
		}
		hset = redis.Hset
	}
	field := fmt.Sprintf("pmgr.%d.%s", die, d.Name)
	b := &backoff.Backoff{
		Min:    10 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
		Jitter: false,
	}
	for {
		_, err := hset(redis.DefaultHash, field, s.String())
		if err == nil {
			return nil
		}
		if b.Attempt() >= publishTries {
			log.Print("err", "pmgr: publish ", field, ": ", err)
			return err
		}
		time.Sleep(b.Duration())
	}
}
