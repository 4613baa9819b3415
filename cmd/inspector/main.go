package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/GoPolymarket/burngate/internal/config"
	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/GoPolymarket/burngate/internal/service"
	"github.com/holiman/uint256"
)

// inspector 读取配置并打印压力阶梯和分配比例，上线前核对用
func main() {
	balance := flag.String("balance", "10000", "sample treasury balance to split")
	ladder := flag.String("prices", "1,0.5,0.45,0.4,0.3,0.25,0.2,0.1", "comma separated prices for the pressure ladder")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	p, err := cfg.Policy()
	if err != nil {
		log.Fatalf("%v", err)
	}
	sample, err := units.Parse(*balance)
	if err != nil {
		log.Fatalf("invalid -balance: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "--- Buyback Pressure ---")
	fmt.Fprintln(w, "PRICE\tPRESSURE_BPS\tSPEND_OF_SAMPLE")
	for _, raw := range strings.Split(*ladder, ",") {
		price, err := units.Parse(strings.TrimSpace(raw))
		if err != nil {
			log.Fatalf("invalid price %q: %v", raw, err)
		}
		pressure := service.CalculatePressure(p.Buyback, p.Thresholds, price)
		spend, err := units.MulBps(sample, pressure)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", units.Format(price), pressure, units.Format(spend))
	}

	fmt.Fprintln(w, "\n--- Fixed Distribution ---")
	printSplit(w, "fixed", sample, p.Shares)

	fmt.Fprintln(w, "\n--- Adaptive Distribution ---")
	printSplit(w, "no bracket", sample, p.Shares)
	// 档位是严格小于边界价，取边界下方 1 wei 落在档内
	for _, br := range p.Adaptive {
		var price uint256.Int
		price.SubUint64(&br.Below, 1)
		shares, err := service.AdaptiveShares(p, price)
		if err != nil {
			log.Fatalf("%v", err)
		}
		printSplit(w, "price<"+units.Format(br.Below), sample, shares)
	}

	fmt.Fprintln(w, "\n--- Sources ---")
	fmt.Fprintln(w, "NAME\tBUYBACK_BPS\tTAG")
	for _, name := range p.SourceNames() {
		tag := model.TagOf(name)
		rate, _ := p.Source(tag)
		fmt.Fprintf(w, "%s\t%d\t%s\n", rate.Name, rate.BuybackBps, tag.Hex())
	}
}

func printSplit(w *tabwriter.Writer, label string, balance uint256.Int, shares model.DistributionShares) {
	alloc, err := service.SplitFixed(balance, shares)
	if err != nil {
		log.Fatalf("%s: %v", label, err)
	}
	fmt.Fprintf(w, "%s\tbuyback %d bps = %s\tstaking %d bps = %s\tliquidity %d bps = %s\toperations %d bps = %s\n",
		label,
		shares.Buyback, units.Format(alloc.Buyback),
		shares.Staking, units.Format(alloc.Staking),
		shares.Liquidity, units.Format(alloc.Liquidity),
		shares.Operations, units.Format(alloc.Operations))
}
