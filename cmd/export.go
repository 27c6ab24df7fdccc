package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"MemoFM/config"
	"MemoFM/model"
	"MemoFM/repository"

	"github.com/spf13/cobra"
)

var (
	exportOutDir string
	exportAll    bool
	exportList   bool
)

var exportCmd = &cobra.Command{
	Use:   "export [recording-id]",
	Short: "导出录音文件",
	Long:  `把存储中的录音导出为音频文件，文件名由录音名称和容器格式生成。也可以只列出录音清单。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		store, err := repository.NewRepository(cfg)
		if err != nil {
			log.Fatalf("无法连接到存储后端: %v", err)
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if exportList {
			recs, err := store.List(ctx)
			if err != nil {
				log.Fatalf("读取录音列表失败: %v", err)
			}
			fmt.Printf("共 %d 条录音:\n", len(recs))
			for _, rec := range recs {
				fmt.Printf("  %s  %-30s  %6.1fs  %s  %s\n",
					rec.ID, rec.Name, rec.Duration, rec.Format,
					rec.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return
		}

		var recs []*model.Recording
		switch {
		case exportAll:
			recs, err = store.List(ctx)
			if err != nil {
				log.Fatalf("读取录音列表失败: %v", err)
			}
		case len(args) == 1:
			rec, err := store.Get(ctx, args[0])
			if err != nil {
				log.Fatalf("读取录音失败: %v", err)
			}
			if rec == nil {
				log.Fatalf("录音不存在: %s", args[0])
			}
			recs = []*model.Recording{rec}
		default:
			log.Fatal("需要指定录音ID，或使用 -a 导出全部，-l 查看清单")
		}

		if err := os.MkdirAll(exportOutDir, 0o755); err != nil {
			log.Fatalf("创建输出目录失败: %v", err)
		}

		for _, rec := range recs {
			target := filepath.Join(exportOutDir, rec.ExportName())
			if err := os.WriteFile(target, rec.Data, 0o644); err != nil {
				log.Fatalf("写出 %s 失败: %v", target, err)
			}
			fmt.Printf("已导出: %s (%d 字节)\n", target, len(rec.Data))
		}

		fmt.Printf("\n导出完成，共 %d 个文件。\n", len(recs))
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	// 添加命令行参数
	exportCmd.Flags().StringVarP(&exportOutDir, "out", "o", ".", "导出文件的输出目录")
	exportCmd.Flags().BoolVarP(&exportAll, "all", "a", false, "导出全部录音")
	exportCmd.Flags().BoolVarP(&exportList, "list", "l", false, "只列出录音清单，不导出")

	// 添加使用说明
	exportCmd.Example = `  # 查看录音清单
  memofm export -l

  # 导出单条录音到当前目录
  memofm export 3f2c9a10-8a7e-4a11-9c64-1d2b6a7f3e55

  # 导出全部录音到指定目录
  memofm export -a -o ./backup`
}
